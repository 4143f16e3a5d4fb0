package connio_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowmesh/connio"
)

// defaultManager is a lazily-initialized, process-wide convenience
// Manager. The core never holds a package-level singleton (spec §9's
// redesign note rules that out); this is the edge-level convenience the
// note asks for instead, kept out of the core package entirely by
// living in a test file that exercises it rather than in connio's own
// exported surface.
var (
	defaultManagerOnce sync.Once
	defaultManagerVal  *connio.Manager
	defaultManagerErr  error
)

// DefaultManager returns a shared Manager constructed with
// connio.Config{}'s defaults, building it on first use.
func DefaultManager() (*connio.Manager, error) {
	defaultManagerOnce.Do(func() {
		defaultManagerVal, defaultManagerErr = connio.NewManager(connio.Config{})
	})
	return defaultManagerVal, defaultManagerErr
}

// Example_defaultManager shows the convenience-at-the-edge pattern:
// an explicit handle is always available via NewManager, and callers
// who want a shared default build one themselves, the way this example
// does, rather than relying on the core to provide one.
func Example_defaultManager() {
	mgr, err := DefaultManager()
	if err != nil {
		fmt.Println("failed:", err)
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	}()

	addrs, err := mgr.BoundAddresses()
	if err != nil {
		fmt.Println("failed:", err)
		return
	}
	fmt.Println(len(addrs))

	// Output:
	// 0
}

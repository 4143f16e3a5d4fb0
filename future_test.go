package connio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFutureResolveThenGet(t *testing.T) {
	f := newFuture()
	f.Resolve(42)
	res, err := f.Get()
	require.NoError(t, err)
	require.Equal(t, 42, res)
}

func TestFutureRejectIsSticky(t *testing.T) {
	f := newFuture()
	f.Reject(ErrThreadClosed)
	f.Resolve(1) // no-op, already settled
	_, err := f.Get()
	require.ErrorIs(t, err, ErrThreadClosed)
}

func TestFutureGetBlocksUntilSettled(t *testing.T) {
	f := newFuture()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := f.Get()
		require.NoError(t, err)
		require.Equal(t, "done", res)
	}()
	time.Sleep(10 * time.Millisecond)
	f.Resolve("done")
	wg.Wait()
}

func TestFutureRegistryScavengeRemovesSettled(t *testing.T) {
	r := newFutureRegistry()
	_, f := r.New()
	f.Resolve(nil)
	r.Scavenge(16)
	r.mu.RLock()
	_, stillThere := r.data[1]
	r.mu.RUnlock()
	require.False(t, stillThere)
}

func TestFutureRegistryRejectAll(t *testing.T) {
	r := newFutureRegistry()
	_, f1 := r.New()
	_, f2 := r.New()
	r.RejectAll(ErrThreadClosed)
	_, err1 := f1.Get()
	_, err2 := f2.Get()
	require.ErrorIs(t, err1, ErrThreadClosed)
	require.ErrorIs(t, err2, ErrThreadClosed)
}

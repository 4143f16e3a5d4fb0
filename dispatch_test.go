package connio

import (
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDispatchConnectRetriesOnAmbiguousFinishConnect exercises the
// FinishConnect-retry redesign (SPEC_FULL.md REDESIGN FLAGS, §2): a
// false/ambiguous completion is retried once before
// ErrConnectFailed-shaped protocol violation is raised.
func TestDispatchConnectRetriesOnAmbiguousFinishConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c
		}
	}()

	cfg := testConfig()
	iot, err := NewIOThread("io-0", cfg, NewNoOpLogger())
	require.NoError(t, err)
	require.NoError(t, iot.Start())
	defer iot.Close(nil)

	dt, err := NewDispatchThread(cfg, NewNoOpLogger(), []*IOThread{iot})
	require.NoError(t, err)
	require.NoError(t, dt.Start())
	defer dt.Close(nil)

	var calls atomic.Int32
	dt.finishConnectFn = func(fd int) (bool, error) {
		n := calls.Add(1)
		if n == 1 {
			return false, nil
		}
		return finishConnect(fd)
	}

	conn := newConnection(1, dt.Thread, ConnConfig{}, cfg, newManagerMetrics().newConnMetrics())
	f, err := conn.Init(InitConnect, ln.Addr())
	require.NoError(t, err)

	_, err = f.Get()
	require.NoError(t, err)
	require.GreaterOrEqual(t, calls.Load(), int32(2))
	require.Equal(t, StatusActive, conn.Status())
}

// TestDispatchConnectFailsAfterSecondAmbiguousFinishConnect verifies a
// second consecutive non-completion is surfaced as a protocol
// violation rather than retried indefinitely.
func TestDispatchConnectFailsAfterSecondAmbiguousFinishConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c
		}
	}()

	cfg := testConfig()
	iot, err := NewIOThread("io-0", cfg, NewNoOpLogger())
	require.NoError(t, err)
	require.NoError(t, iot.Start())
	defer iot.Close(nil)

	dt, err := NewDispatchThread(cfg, NewNoOpLogger(), []*IOThread{iot})
	require.NoError(t, err)
	require.NoError(t, dt.Start())
	defer dt.Close(nil)

	dt.finishConnectFn = func(fd int) (bool, error) { return false, nil }

	conn := newConnection(1, dt.Thread, ConnConfig{}, cfg, newManagerMetrics().newConnMetrics())
	f, err := conn.Init(InitConnect, ln.Addr())
	require.NoError(t, err)

	_, err = f.Get()
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func testConfig() Config {
	cfg, err := resolveConfig(Config{
		NIOThreads:        1,
		MinimumBufferSize: 64,
		MaximumBufferSize: 4096,
		SelectTimeoutMs:   10,
	}, nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

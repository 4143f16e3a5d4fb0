package connio

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// freeTCPAddr reserves an ephemeral port via the stdlib listener, then
// releases it immediately so the manager's own AcceptRegistry (which
// rejects wildcard ports) can bind the concrete port instead.
func freeTCPAddr(t *testing.T) *net.TCPAddr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())
	return addr
}

// recordingConnHandler collects every OnReceive payload in arrival
// order and signals closeCh exactly once per OnClose call.
type recordingConnHandler struct {
	mu        sync.Mutex
	received  []string
	readCh    chan string
	closeOnce sync.Once
	closeCh   chan error
}

func newRecordingConnHandler() *recordingConnHandler {
	return &recordingConnHandler{
		readCh:  make(chan string, 64),
		closeCh: make(chan error, 1),
	}
}

func (h *recordingConnHandler) OnBind(conn *Connection) {}

func (h *recordingConnHandler) OnReceive(conn *Connection, batch []any) {
	h.mu.Lock()
	for _, event := range batch {
		s, _ := event.(string)
		h.received = append(h.received, s)
	}
	h.mu.Unlock()
	for _, event := range batch {
		s, _ := event.(string)
		h.readCh <- s
	}
}

func (h *recordingConnHandler) OnClosing(conn *Connection, cause error, pending [][]byte) {}

func (h *recordingConnHandler) OnClose(conn *Connection, cause error) {
	h.closeOnce.Do(func() {
		h.closeCh <- cause
		close(h.closeCh)
	})
}

func (h *recordingConnHandler) OnError(conn *Connection, cause error, optionalBuffer []byte) {}

func lineChain() *Chain {
	return NewChain(byteToStringFilter{}, &lineFrameFilter{})
}

// TestManagerEchoScenario exercises spec scenario 1: a client connects,
// sends four framed strings, the server echoes each back, both sides
// observe the four messages in order and close exactly once.
func TestManagerEchoScenario(t *testing.T) {
	mgr, err := NewManager(Config{NIOThreads: 2})
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	}()

	addr := freeTCPAddr(t)

	serverHandler := newRecordingConnHandler()
	server := mgr.NewConnection(ConnConfig{})
	server.SetHandler(serverHandler)
	server.SetFilterChain(lineChain())
	serverFuture, err := server.Init(InitAccept, addr)
	require.NoError(t, err)
	_, err = serverFuture.Get()
	require.NoError(t, err)

	clientHandler := newRecordingConnHandler()
	client := mgr.NewConnection(ConnConfig{})
	client.SetHandler(clientHandler)
	client.SetFilterChain(lineChain())
	clientFuture, err := client.Init(InitConnect, addr)
	require.NoError(t, err)
	_, err = clientFuture.Get()
	require.NoError(t, err)

	want := []string{"hello", "from", "the", "client"}

	// The server's echo handler is wired up via a second recording
	// handler that forwards every received message straight back.
	go func() {
		for i := 0; i < len(want); i++ {
			select {
			case s := <-serverHandler.readCh:
				_ = server.SendOutbound(s)
			case <-time.After(5 * time.Second):
				return
			}
		}
	}()

	for _, msg := range want {
		require.NoError(t, client.SendOutbound(msg))
	}

	got := make([]string, 0, len(want))
	for i := 0; i < len(want); i++ {
		select {
		case s := <-clientHandler.readCh:
			got = append(got, s)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for echo %d/%d, got %v so far", i+1, len(want), got)
		}
	}
	require.Equal(t, want, got)

	require.NoError(t, client.Close())
	require.NoError(t, server.Close())

	select {
	case <-clientHandler.closeCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for client OnClose")
	}
	select {
	case <-serverHandler.closeCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server OnClose")
	}

	// Idempotent close: a second Close must not raise a new onClose.
	require.ErrorIs(t, client.Close(), ErrAlreadyClosed)
}

// TestManagerAcceptCoalescing exercises spec scenario 4: binding the
// same address twice shares one listening socket; closing one pending
// connection leaves the address bound until the last is closed.
func TestManagerAcceptCoalescing(t *testing.T) {
	mgr, err := NewManager(Config{NIOThreads: 1})
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	}()

	addr := freeTCPAddr(t)

	first := mgr.NewConnection(ConnConfig{})
	first.SetHandler(newRecordingConnHandler())
	f1, err := first.Init(InitAccept, addr)
	require.NoError(t, err)
	_, err = f1.Get()
	require.NoError(t, err)

	second := mgr.NewConnection(ConnConfig{})
	second.SetHandler(newRecordingConnHandler())
	f2, err := second.Init(InitAccept, addr)
	require.NoError(t, err)
	_, err = f2.Get()
	require.NoError(t, err)

	addrs, err := mgr.BoundAddresses()
	require.NoError(t, err)
	require.Len(t, addrs, 1)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		addrs, err := mgr.BoundAddresses()
		return err == nil && len(addrs) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool {
		addrs, err := mgr.BoundAddresses()
		return err == nil && len(addrs) == 0
	}, time.Second, 10*time.Millisecond)
}

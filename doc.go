// Package connio provides an asynchronous, selector-driven connection
// management subsystem.
//
// # Architecture
//
// A [Manager] owns one dispatch thread and a fixed pool of I/O threads.
// Each thread is a [Thread]: a single goroutine that owns one OS-backed
// selector (epoll on Linux, kqueue on Darwin, IOCP on Windows) and drains
// an external submission inbox before blocking in the selector. Accepted
// sockets are handed off from the dispatch thread to an I/O thread by
// round robin; ownership of a [Connection] only ever moves forward along
// that handoff, never back.
//
// # Platform Support
//
//   - Linux: epoll (poller_linux.go)
//   - Darwin/BSD: kqueue (poller_darwin.go)
//   - Windows: IOCP (poller_windows.go)
//
// # Thread Safety
//
// A [Connection]'s buffers, filter chain and handler are owned
// exclusively by the thread currently holding it; callers on other
// goroutines interact with it only through [Connection.Proxy], which
// always resolves to the connection's current owner, even mid-handoff.
//
// # Execution Model
//
// Each [Thread] runs a fixed cycle: drain the external inbox, dispatch
// every drained event through the connection's status/event handler
// table, block in the selector for the configured timeout, then run
// doReadyOps for each ready key. Errors during event dispatch or I/O
// readiness handling are isolated to the event or connection that
// raised them; they never stop the thread.
//
// # Usage
//
//	mgr, err := connio.NewManager(connio.Config{NIOThreads: 4})
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close(context.Background())
//
//	conn := mgr.NewConnection(connio.ConnConfig{})
//	future, err := conn.Init(connio.InitConnect, "example.com:443")
//
// # Error Types
//
// See errors.go for the argument-shape, socket, protocol-violation and
// thread-fatal error taxonomy used throughout the package.
package connio

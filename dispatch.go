package connio

import (
	"errors"
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// DispatchThread specializes Thread for accept and connect readiness:
// it owns the AcceptRegistry, issues non-blocking connects, and hands
// newly active connections off to an I/O thread by round robin.
type DispatchThread struct {
	*Thread

	registry  *AcceptRegistry
	ioThreads []*IOThread
	rr        atomic.Uint64

	connectFDs map[int]*Connection

	// finishConnectFn is finishConnect by default; overridden in tests to
	// exercise the FinishConnect-retry redesign without needing a socket
	// that genuinely stalls between EINPROGRESS and SO_ERROR==0.
	finishConnectFn func(fd int) (bool, error)
}

// NewDispatchThread constructs and starts a dispatch thread that hands
// off accepted/connected sockets to ioThreads round robin.
func NewDispatchThread(cfg Config, logger Logger, ioThreads []*IOThread) (*DispatchThread, error) {
	dt := &DispatchThread{
		ioThreads:       ioThreads,
		connectFDs:      make(map[int]*Connection),
		finishConnectFn: finishConnect,
	}
	table := dt.buildStateTable()
	thread, err := NewThread("dispatch", table, nil, cfg, logger)
	if err != nil {
		return nil, err
	}
	thread.threadLevelHandler = dt.handleThreadLevel
	dt.Thread = thread
	dt.registry = NewAcceptRegistry(dt.poller(), cfg.AcceptRateLimit)
	return dt, nil
}

func (dt *DispatchThread) buildStateTable() *StateTable {
	b := NewStateTableBuilder()
	b.On(StatusVirgin, KindAccept).Run(dt.handleInitAccept)
	b.On(StatusVirgin, KindConnect).Run(dt.handleInitConnect)
	b.On(StatusVirgin, KindRegister).Run(dt.handleInitRegister)
	b.OnKind(KindClose).Run(dt.handleClose)
	b.OnKind(KindErr).Run(dt.handleErr)
	b.OnKind(KindExecute).Run(dt.handleExecute)
	return b.Build()
}

func (dt *DispatchThread) handleThreadLevel(ev Event) bool {
	switch ev.Kind {
	case KindGetBoundAddresses:
		if ev.Future != nil {
			ev.Future.Resolve(dt.registry.Addresses())
		}
		return true
	default:
		return false
	}
}

// handleInitAccept registers conn as a listener on the target address,
// binding the underlying socket the first time that address is seen.
func (dt *DispatchThread) handleInitAccept(conn *Connection, ev Event) error {
	addr, ok := ev.Payload.(net.Addr)
	if !ok {
		return &ArgumentError{Message: "Init(InitAccept, ...) requires a net.Addr target"}
	}
	fd, first, err := dt.registry.Register(conn, addr)
	if err != nil {
		if ev.Future != nil {
			ev.Future.Reject(err)
		}
		return nil
	}
	conn.setStatus(StatusAccept)
	if first {
		entry, _ := dt.registry.entryByFD(fd)
		if err := dt.poller().RegisterFD(fd, EventRead, func(IOEvents) {
			dt.handleAcceptReady(entry)
		}); err != nil {
			if ev.Future != nil {
				ev.Future.Reject(&SocketError{Op: "register", Message: addr.String(), Cause: err})
			}
			return nil
		}
	}
	dt.track(conn)
	if ev.Future != nil {
		ev.Future.Resolve(addr)
	}
	return nil
}

func (dt *DispatchThread) poller() *FastPoller { return &dt.Thread.poller }

// handleAcceptReady accepts every currently pending connection on
// entry's listening socket, handing each to the head of the pending
// queue. Accept() failure errors every pending connection for that
// entry — local recovery, not a thread-fatal condition.
func (dt *DispatchThread) handleAcceptReady(entry *acceptEntry) {
	for {
		if !dt.registry.allow(entry.addr) {
			return
		}
		nfd, peer, err := acceptFD(entry.fd)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			dt.failAllPending(entry, &SocketError{Op: "accept", Message: entry.addr.String(), Cause: err})
			return
		}
		conn, ok := dt.registry.popPending(entry)
		if !ok {
			_ = closeFD(nfd)
			return
		}
		dt.untrack(conn)
		conn.mu.Lock()
		conn.fd = nfd
		conn.target = peer
		conn.mu.Unlock()
		conn.setStatus(StatusActive)
		dt.handoff(conn)
	}
}

func (dt *DispatchThread) failAllPending(entry *acceptEntry, cause error) {
	for {
		conn, ok := dt.registry.popPending(entry)
		if !ok {
			return
		}
		dt.untrack(conn)
		conn.notifyError(cause, nil)
		conn.notifyClosing(cause)
		_ = conn.closeLocked(cause)
	}
}

// handleInitConnect issues a non-blocking connect and registers
// OP_CONNECT (write) readiness.
func (dt *DispatchThread) handleInitConnect(conn *Connection, ev Event) error {
	addr, ok := ev.Payload.(net.Addr)
	if !ok {
		if s, isStr := ev.Payload.(string); isStr {
			resolved, err := net.ResolveTCPAddr("tcp", s)
			if err != nil {
				if ev.Future != nil {
					ev.Future.Reject(&ArgumentError{Message: "resolve target", Cause: err})
				}
				return nil
			}
			addr = resolved
		} else {
			return &ArgumentError{Message: "Init(InitConnect, ...) requires a net.Addr or string target"}
		}
	}

	fd, err := connectFD(addr)
	if err != nil {
		if ev.Future != nil {
			ev.Future.Reject(&SocketError{Op: "connect", Message: addr.String(), Cause: err})
		}
		return nil
	}
	conn.mu.Lock()
	conn.fd = fd
	conn.target = addr
	conn.mu.Unlock()
	conn.setStatus(StatusConnect)
	dt.connectFDs[fd] = conn
	dt.track(conn)

	retried := false
	if err := dt.poller().RegisterFD(fd, EventWrite, func(events IOEvents) {
		dt.handleConnectReady(conn, fd, ev.Future, &retried)
	}); err != nil {
		delete(dt.connectFDs, fd)
		if ev.Future != nil {
			ev.Future.Reject(&SocketError{Op: "register", Message: addr.String(), Cause: err})
		}
		return nil
	}
	return nil
}

// handleConnectReady is the resolution of the FinishConnect Open
// Question (see SPEC_FULL.md REDESIGN FLAGS): a false/ambiguous
// completion is retried once by re-arming OP_CONNECT; only a second
// consecutive non-completion is a protocol violation.
func (dt *DispatchThread) handleConnectReady(conn *Connection, fd int, future *Future, retried *bool) {
	done, err := dt.finishConnectFn(fd)
	if err != nil {
		dt.failConnect(conn, fd, future, &SocketError{Op: "connect", Cause: err})
		return
	}
	if !done {
		if *retried {
			dt.failConnect(conn, fd, future, &ProtocolError{Message: "connect did not complete after retry", Cause: ErrConnectFailed})
			return
		}
		*retried = true
		return
	}
	_ = dt.poller().UnregisterFD(fd)
	delete(dt.connectFDs, fd)
	dt.untrack(conn)
	conn.setStatus(StatusActive)
	if future != nil {
		future.Resolve(conn.target)
	}
	dt.handoff(conn)
}

func (dt *DispatchThread) failConnect(conn *Connection, fd int, future *Future, cause error) {
	_ = dt.poller().UnregisterFD(fd)
	delete(dt.connectFDs, fd)
	dt.untrack(conn)
	conn.notifyError(cause, nil)
	conn.notifyClosing(cause)
	_ = conn.closeLocked(cause)
	if future != nil {
		future.Reject(cause)
	}
}

// handleInitRegister adopts an already-connected raw fd straight to
// StatusActive (spec §3/§4.5's VIRGIN --REGISTER--> ACTIVE transition):
// unlike Connect/Accept there is no pending phase and no dispatch-selector
// registration to unwind, so it goes directly to handoff.
func (dt *DispatchThread) handleInitRegister(conn *Connection, ev Event) error {
	fd, ok := ev.Payload.(int)
	if !ok || fd < 0 {
		err := &ArgumentError{Message: "Init(InitRegister, ...) requires a valid raw fd"}
		if ev.Future != nil {
			ev.Future.Reject(err)
		}
		return nil
	}
	conn.mu.Lock()
	conn.fd = fd
	conn.mu.Unlock()
	conn.setStatus(StatusActive)
	if ev.Future != nil {
		ev.Future.Resolve(conn.target)
	}
	dt.handoff(conn)
	return nil
}

// handoff hands conn to the next I/O thread by round robin, reassigning
// ownership under the connection lock before submitting KindDispatch so
// no event can reach the old owner's inbox afterward. Callers remove
// any dispatch-selector registration of conn's fd before calling it.
func (dt *DispatchThread) handoff(conn *Connection) {
	next := dt.ioThreads[dt.rr.Add(1)%uint64(len(dt.ioThreads))]
	conn.reassignOwner(next.Thread)
	_ = next.Submit(Event{Kind: KindDispatch, Conn: conn})
}

func (dt *DispatchThread) handleClose(conn *Connection, ev Event) error {
	cause := ev.Cause
	if cause == nil {
		cause = ErrThreadClosed
	}
	dt.registry.RemovePending(conn)
	dt.untrack(conn)
	conn.notifyClosing(cause)
	return conn.closeLocked(cause)
}

func (dt *DispatchThread) handleErr(conn *Connection, ev Event) error {
	return dt.handleClose(conn, ev)
}

// handleExecute runs arbitrary proxy-issued functions, and — since a
// connection is owned by the dispatch thread for the entire
// Connect/Accept-pending window — queues any SendOutbound issued
// before the connection reaches StatusActive rather than dropping it
// (spec §8 scenario 3). An event processed here after the connection
// has been handed off is forwarded to its new owner.
func (dt *DispatchThread) handleExecute(conn *Connection, ev Event) error {
	if owner := conn.currentOwner(); owner != dt.Thread {
		return owner.Submit(ev)
	}
	switch payload := ev.Payload.(type) {
	case execFn:
		payload(conn)
	case outboundSend:
		conn.queuePendingOutbound(payload.msg)
	}
	return nil
}

package connio

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// IOThread specializes Thread for read/write readiness on connections
// it has received via KindDispatch handoff from the dispatch thread.
type IOThread struct {
	*Thread
}

// NewIOThread constructs an I/O thread. Call Start to begin running it.
func NewIOThread(name string, cfg Config, logger Logger) (*IOThread, error) {
	iot := &IOThread{}
	table := iot.buildStateTable()
	thread, err := NewThread(name, table, iot.onReady, cfg, logger)
	if err != nil {
		return nil, err
	}
	iot.Thread = thread
	return iot, nil
}

func (iot *IOThread) buildStateTable() *StateTable {
	b := NewStateTableBuilder()
	b.On(StatusActive, KindDispatch).Run(iot.handleDispatch)
	b.On(StatusActive, KindOp).Run(iot.handleOp)
	b.OnKind(KindClose).Run(iot.handleClose)
	b.OnKind(KindErr).Run(iot.handleErr)
	b.OnKind(KindExecute).Run(iot.handleExecute)
	return b.Build()
}

// handleDispatch registers conn's channel with this thread's selector,
// arms read interest unconditionally and write interest only if there
// is already queued deferred data, publishes OOBBind, calls OnBind, then
// runs every SendOutbound message queued while the dispatch thread
// owned the connection through the outbound path, in submission order.
func (iot *IOThread) handleDispatch(conn *Connection, ev Event) error {
	iot.track(conn)
	interest := EventRead
	conn.mu.Lock()
	fd := conn.fd
	if !conn.deferred.Empty() {
		interest |= EventWrite
	}
	conn.mu.Unlock()

	if err := iot.poller().RegisterFD(fd, interest, func(events IOEvents) {
		iot.onReady(events, conn)
	}); err != nil {
		return &ThreadError{Message: "register dispatched connection", Cause: err}
	}

	conn.publishOOB(OOBEvent{Kind: OOBBind, Conn: conn})
	if conn.handler != nil {
		conn.handler.OnBind(conn)
	}

	for _, msg := range conn.takePendingOutbound() {
		iot.sendOutbound(conn, msg)
	}
	return nil
}

func (iot *IOThread) poller() *FastPoller { return &iot.Thread.poller }

// onReady is the thread's ReadyHandler: dispatched per ready key by the
// selector's per-fd callback registered in handleDispatch.
func (iot *IOThread) onReady(events IOEvents, conn *Connection) {
	if events&EventRead != 0 {
		iot.handleReadReady(conn)
	}
	if events&(EventWrite) != 0 {
		iot.handleWriteReady(conn)
	}
	if events&(EventError|EventHangup) != 0 && events&EventRead == 0 {
		iot.handleReadReady(conn) // surface the error/EOF via the read path
	}
}

func (iot *IOThread) handleReadReady(conn *Connection) {
	conn.mu.Lock()
	fd := conn.fd
	conn.mu.Unlock()
	if fd < 0 {
		return
	}

	conn.mu.Lock()
	if err := conn.growReadBuf(conn.minSize); err != nil {
		conn.mu.Unlock()
		iot.closeWithCause(conn, err, nil)
		return
	}
	buf := conn.readBuf[:cap(conn.readBuf)]
	conn.mu.Unlock()

	n, err := readFD(fd, buf)
	if n > 0 {
		data := make([]byte, n)
		copy(data, buf[:n])
		var events []any
		if chain := conn.chainFor(); chain != nil {
			events = chain.PushInbound([]any{data})
		} else {
			events = []any{data}
		}
		if len(events) > 0 && conn.handler != nil {
			conn.handler.OnReceive(conn, events)
		}
		conn.metrics.recordRead(n)
	}
	if err != nil && errors.Is(err, unix.EAGAIN) {
		return
	}
	if errors.Is(err, io.EOF) || (err == nil && n == 0) {
		iot.beginGracefulClose(conn, io.EOF)
		return
	}
	if err != nil {
		iot.closeWithCause(conn, &SocketError{Op: "read", Cause: err}, nil)
	}
}

func (iot *IOThread) handleWriteReady(conn *Connection) {
	conn.mu.Lock()
	fd := conn.fd
	conn.mu.Unlock()
	if fd < 0 {
		return
	}

	for {
		chunk := conn.deferred.Front()
		if chunk == nil {
			break
		}
		n, err := writeFD(fd, chunk)
		if n > 0 {
			conn.deferred.Advance(n)
			conn.metrics.recordWrite(n)
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			iot.closeWithCause(conn, &SocketError{Op: "write", Cause: err}, nil)
			return
		}
		if n == 0 {
			return
		}
	}

	_ = iot.poller().ModifyFD(fd, EventRead)
	conn.publishOOB(OOBEvent{Kind: OOBWritable, Conn: conn})

	if conn.Status() == StatusClosing {
		iot.finishClose(conn)
	}
}

// handleOp toggles selector interest without changing ownership.
func (iot *IOThread) handleOp(conn *Connection, ev Event) error {
	events, ok := ev.Payload.(IOEvents)
	if !ok {
		return &ArgumentError{Message: "KindOp requires an IOEvents payload"}
	}
	conn.mu.Lock()
	fd := conn.fd
	conn.mu.Unlock()
	return iot.poller().ModifyFD(fd, events)
}

func (iot *IOThread) handleClose(conn *Connection, ev Event) error {
	cause := ev.Cause
	if cause == nil {
		cause = ErrThreadClosed
	}
	return iot.beginGracefulClose(conn, cause)
}

func (iot *IOThread) handleErr(conn *Connection, ev Event) error {
	cause := ev.Cause
	if cause == nil {
		cause = &ProtocolError{Message: "externally reported error"}
	}
	iot.closeWithCause(conn, cause, nil)
	return nil
}

func (iot *IOThread) handleExecute(conn *Connection, ev Event) error {
	switch payload := ev.Payload.(type) {
	case execFn:
		payload(conn)
	case outboundSend:
		iot.sendOutbound(conn, payload.msg)
	}
	return nil
}

func (iot *IOThread) sendOutbound(conn *Connection, msg any) {
	var toWrite []any
	if chain := conn.chainFor(); chain != nil {
		toWrite = chain.PushOutbound([]any{msg})
	} else {
		toWrite = []any{msg}
	}
	for _, v := range toWrite {
		var data []byte
		switch tv := v.(type) {
		case []byte:
			data = tv
		case string:
			data = []byte(tv)
		default:
			iot.closeWithCause(conn, &ProtocolError{Message: "outbound filter chain did not produce []byte or string"}, nil)
			return
		}
		crossed := conn.deferred.Push(data)
		if crossed {
			conn.publishOOB(OOBEvent{Kind: OOBBackpressure, Conn: conn})
		}
	}

	conn.mu.Lock()
	fd := conn.fd
	conn.mu.Unlock()
	if fd >= 0 {
		_ = iot.poller().ModifyFD(fd, EventRead|EventWrite)
	}
	// Opportunistically flush immediately rather than waiting for the
	// next write-readiness notification.
	iot.handleWriteReady(conn)
}

// beginGracefulClose marks the connection closing, publishes OOBClosing,
// and finishes immediately if there is nothing left to drain.
func (iot *IOThread) beginGracefulClose(conn *Connection, cause error) error {
	if conn.Status() == StatusClosed || conn.Status() == StatusClosing {
		return nil
	}
	conn.forceError(cause)
	conn.setStatus(StatusClosing)
	conn.publishOOB(OOBEvent{Kind: OOBClosing, Conn: conn})
	conn.notifyClosing(cause)
	conn.mu.Lock()
	fd := conn.fd
	draining := !conn.deferred.Empty()
	conn.mu.Unlock()
	if fd >= 0 {
		var interest IOEvents
		if draining {
			interest = EventWrite
		}
		_ = iot.poller().ModifyFD(fd, interest)
	}
	if !draining {
		iot.finishClose(conn)
	}
	return nil
}

func (iot *IOThread) closeWithCause(conn *Connection, cause error, optionalBuffer []byte) {
	conn.notifyError(cause, optionalBuffer)
	conn.notifyClosing(cause)
	iot.finishClose(conn)
}

func (iot *IOThread) finishClose(conn *Connection) {
	conn.mu.Lock()
	fd := conn.fd
	conn.mu.Unlock()
	if fd >= 0 {
		_ = iot.poller().UnregisterFD(fd)
	}
	iot.untrack(conn)
	_ = conn.closeLocked(conn.Cause())
}

package connio

// Proxy is a thread-routing handle for a Connection: every call
// dereferences through the connection's *current* owner thread, even
// while a dispatch-to-I/O handoff is in flight. It is the one handle,
// besides the error slot and status word, that is safe to hold and use
// from any goroutine regardless of who currently owns the connection.
type Proxy struct {
	conn *Connection
}

// Send routes msg to the connection's current owner for outbound
// delivery.
func (p *Proxy) Send(msg any) error {
	return p.conn.SendOutbound(msg)
}

// Close routes a close request to the connection's current owner.
func (p *Proxy) Close() error {
	return p.conn.Close()
}

// Error routes an error-close request to the connection's current owner.
func (p *Proxy) Error(cause error) error {
	return p.conn.Error(cause)
}

// Status reads the connection's status directly; status is always
// safe to read regardless of ownership.
func (p *Proxy) Status() Status {
	return p.conn.Status()
}

// Execute submits fn to run on the connection's current owner thread.
func (p *Proxy) Execute(fn func(conn *Connection)) error {
	owner := p.conn.currentOwner()
	if owner == nil {
		return &ArgumentError{Message: "connection has no owner thread"}
	}
	return owner.Submit(Event{Kind: KindExecute, Conn: p.conn, Payload: execFn(fn)})
}

type execFn func(conn *Connection)

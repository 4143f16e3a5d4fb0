package connio

import (
	"net"
	"sync"
	"sync/atomic"
)

// ConnHandler receives application-level lifecycle callbacks from a
// Connection, always on whichever thread currently owns it (spec §4.6).
type ConnHandler interface {
	// OnBind is called exactly once, after the connection's filter
	// chain has been constructed and its channel registered for I/O.
	OnBind(conn *Connection)
	// OnReceive is called once per nonempty batch of inbound
	// application events the filter chain produced from data read off
	// the wire, in network-receive order.
	OnReceive(conn *Connection, batch []any)
	// OnClosing is called once a graceful close has begun — because the
	// peer sent EOS, the user called Close, or Error was called — with
	// any bytes still queued outbound at that moment.
	OnClosing(conn *Connection, cause error, pending [][]byte)
	// OnClose is called exactly once, when the connection reaches
	// StatusClosed, with the terminal cause (ErrThreadClosed,
	// io.EOF-derived, or whatever Error/Close supplied).
	OnClose(conn *Connection, cause error)
	// OnError is called at most once, before OnClosing, when a socket,
	// protocol or argument error — or a non-nil cause passed to Error —
	// terminates the connection. Graceful causes (peer EOS, Close) set
	// the error slot without calling it. Every call site in this package
	// passes a nil optionalBuffer.
	OnError(conn *Connection, cause error, optionalBuffer []byte)
}

// Connection is a single managed socket: its buffers, deferred-write
// queue, filter chain and handler are owned exclusively by whichever
// Thread currently holds it. Only Proxy, the error slot and the status
// word are safe to touch from a foreign goroutine.
type Connection struct {
	id uint64

	mu     sync.Mutex // guards owner, fd, buffers, filter chain, handler
	owner  *Thread
	fd     int
	status atomic.Int32

	readBuf  []byte
	writeBuf []byte
	minSize  int
	maxSize  int

	deferred *deferredWriteQueue

	chain   *Chain
	handler ConnHandler
	bus     *EventBus

	errOnce       sync.Once
	errVal        atomic.Pointer[error]
	errNotifyOnce sync.Once
	closingOnce   sync.Once

	target net.Addr // dial/listen target recorded at Init time

	// pendingOutbound holds messages submitted via SendOutbound before
	// the connection reached StatusActive (spec §8 scenario 3: sends
	// issued before Init's future settles must still be observed, in
	// order, once the connection completes). Drained by the owning
	// I/O thread's KindDispatch handler.
	pendingOutbound []any

	metrics *connMetrics
}

// newConnection constructs a Connection in StatusVirgin, owned by
// owner, sized per cfg.
func newConnection(id uint64, owner *Thread, cfg ConnConfig, mgrCfg Config, m *connMetrics) *Connection {
	minSize := cfg.MinimumBufferSize
	if minSize == 0 {
		minSize = mgrCfg.MinimumBufferSize
	}
	maxSize := cfg.MaximumBufferSize
	if maxSize == 0 {
		maxSize = mgrCfg.MaximumBufferSize
	}
	c := &Connection{
		id:       id,
		owner:    owner,
		fd:       -1,
		minSize:  minSize,
		maxSize:  maxSize,
		readBuf:  make([]byte, 0, minSize),
		writeBuf: make([]byte, 0, minSize),
		deferred: newDeferredWriteQueue(mgrCfg.DeferredWriteHighWaterMark),
		metrics:  m,
	}
	c.status.Store(int32(StatusVirgin))
	return c
}

// ID returns the connection's manager-scoped identity.
func (c *Connection) ID() uint64 { return c.id }

// Status returns the connection's current lifecycle status.
func (c *Connection) Status() Status {
	return Status(c.status.Load())
}

func (c *Connection) setStatus(s Status) { c.status.Store(int32(s)) }

// currentOwner returns the thread currently holding this connection.
// Safe from any goroutine; used by Proxy to resolve mid-handoff.
func (c *Connection) currentOwner() *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// Proxy returns a thread-routing handle for this connection: every
// call against it resolves through the connection's *current* owner,
// even if a handoff is in flight.
func (c *Connection) Proxy() *Proxy { return &Proxy{conn: c} }

// SetHandler installs the application handler. Must be called before
// Init, or on the owning thread.
func (c *Connection) SetHandler(h ConnHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// SetFilterChain installs the filter chain instance used to translate
// between wire bytes and application events. Must be called before
// Init, or on the owning thread.
func (c *Connection) SetFilterChain(chain *Chain) {
	c.mu.Lock()
	c.chain = chain
	c.mu.Unlock()
}

// chainFor returns the connection's filter chain, or nil if none was set.
func (c *Connection) chainFor() *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chain
}

// EventBus returns the connection's OOB event bus, creating it lazily.
func (c *Connection) EventBus() *EventBus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bus == nil {
		c.bus = NewEventBus()
	}
	return c.bus
}

// publishOOB runs event through the filter chain's OOB traversal (if a
// chain is set) and then republishes whatever emerges on the
// connection's EventBus, so external subscribers see filter-transformed
// OOB events rather than the raw internal ones.
func (c *Connection) publishOOB(event OOBEvent) {
	chain := c.chainFor()
	out := []OOBEvent{event}
	if chain != nil {
		out = chain.PushOOB(event)
	}
	c.mu.Lock()
	bus := c.bus
	c.mu.Unlock()
	if bus == nil {
		return
	}
	for _, e := range out {
		bus.Publish(e)
	}
}

// Init requests the connection be connected (InitConnect) or bound as a
// listener (InitAccept) against target, returning a Future settled once
// the operation completes (or fails).
func (c *Connection) Init(kind InitKind, target any) (*Future, error) {
	owner := c.currentOwner()
	if owner == nil {
		return nil, &ArgumentError{Message: "connection has no owner thread"}
	}
	var ev Event
	switch kind {
	case InitConnect:
		ev = Event{Kind: KindConnect, Conn: c, Payload: target}
	case InitAccept:
		ev = Event{Kind: KindAccept, Conn: c, Payload: target}
	case InitRegister:
		ev = Event{Kind: KindRegister, Conn: c, Payload: target}
	default:
		return nil, &ArgumentError{Message: "unknown InitKind"}
	}
	return owner.Request(ev.Kind, c, ev.Payload)
}

// SendOutbound enqueues msg to be pushed through the outbound filter
// chain and, eventually, the deferred-write queue. Safe from any
// goroutine: it is submitted as an event to the connection's current
// owner, which actually performs the write.
func (c *Connection) SendOutbound(msg any) error {
	owner := c.currentOwner()
	if owner == nil {
		return &ArgumentError{Message: "connection has no owner thread"}
	}
	if c.Status() == StatusClosed {
		return ErrAlreadyClosed
	}
	return owner.Submit(Event{Kind: KindExecute, Conn: c, Payload: outboundSend{msg: msg}})
}

type outboundSend struct{ msg any }

// queuePendingOutbound records msg for later delivery once the
// connection reaches an owner that can actually write it (see
// pendingOutbound). Called on the dispatch thread while a connection
// is still Connect/Accept-pending.
func (c *Connection) queuePendingOutbound(msg any) {
	c.mu.Lock()
	c.pendingOutbound = append(c.pendingOutbound, msg)
	c.mu.Unlock()
}

// takePendingOutbound returns and clears every message queued via
// queuePendingOutbound, in submission order.
func (c *Connection) takePendingOutbound() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pendingOutbound) == 0 {
		return nil
	}
	out := c.pendingOutbound
	c.pendingOutbound = nil
	return out
}

// Close requests a graceful close with no specific cause
// (ErrThreadClosed is recorded). Idempotent.
func (c *Connection) Close() error {
	return c.Error(nil)
}

// Error requests the connection close with cause as its terminal error.
// A non-nil cause is submitted as KindErr, which closes without waiting
// for the deferred-write queue to drain; a nil cause is a plain Close.
// The error slot transitions nil -> non-nil at most once; the first
// cause given (across concurrent Close/Error calls) wins.
func (c *Connection) Error(cause error) error {
	if c.Status() == StatusClosed {
		return ErrAlreadyClosed
	}
	owner := c.currentOwner()
	if owner == nil {
		return &ArgumentError{Message: "connection has no owner thread"}
	}
	kind := KindClose
	if cause != nil {
		kind = KindErr
	}
	return owner.Submit(Event{Kind: kind, Conn: c, Cause: cause})
}

// forceError records cause in the error slot if it is not already set,
// without going through the owning thread's inbox. Used by the owning
// thread itself and by shutdown paths that must not re-enter Submit.
func (c *Connection) forceError(cause error) {
	if cause == nil {
		return
	}
	c.errOnce.Do(func() {
		v := cause
		c.errVal.Store(&v)
	})
}

// notifyError records cause in the error slot (first cause wins, as
// forceError already guarantees) and, the first time a genuine error
// terminates this connection, invokes the handler's OnError with
// whatever in-flight buffer was available when it occurred. Graceful
// causes (EOS, user Close) must not reach this method — only real
// socket/protocol/argument-shape errors trigger OnError, per spec §7's
// error taxonomy and §8's monotonicity property.
func (c *Connection) notifyError(cause error, optionalBuffer []byte) {
	if cause == nil {
		return
	}
	c.forceError(cause)
	c.errNotifyOnce.Do(func() {
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h.OnError(c, cause, optionalBuffer)
		}
	})
}

// notifyClosing invokes the handler's OnClosing exactly once, with a
// snapshot of whatever outbound bytes were still queued at the moment
// the graceful close began.
func (c *Connection) notifyClosing(cause error) {
	c.closingOnce.Do(func() {
		c.mu.Lock()
		h := c.handler
		pending := c.deferred.Snapshot()
		c.mu.Unlock()
		if h != nil {
			h.OnClosing(c, cause, pending)
		}
	})
}

// Cause returns the connection's terminal error, if any.
func (c *Connection) Cause() error {
	p := c.errVal.Load()
	if p == nil {
		return nil
	}
	return *p
}

// closeLocked performs the actual socket teardown. Must be called on
// the owning thread's goroutine.
func (c *Connection) closeLocked(cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if Status(c.status.Load()) == StatusClosed {
		return nil
	}
	c.forceError(cause)
	if c.fd >= 0 {
		_ = closeFD(c.fd)
		c.fd = -1
	}
	c.status.Store(int32(StatusClosed))
	if c.handler != nil {
		c.handler.OnClose(c, c.Cause())
	}
	return nil
}

// reassignOwner moves the connection to newOwner. Called only by the
// dispatch thread's handoff path, with the connection lock held and the
// old owner's selector already deregistered.
func (c *Connection) reassignOwner(newOwner *Thread) {
	c.mu.Lock()
	c.owner = newOwner
	c.mu.Unlock()
}

// growReadBuf doubles the read buffer capacity, up to maxSize.
// Returns ErrFrameTooLarge if it would need to exceed maxSize.
func (c *Connection) growReadBuf(need int) error {
	return growBuffer(&c.readBuf, need, c.maxSize)
}

func (c *Connection) growWriteBuf(need int) error {
	return growBuffer(&c.writeBuf, need, c.maxSize)
}

func growBuffer(buf *[]byte, need, maxSize int) error {
	if cap(*buf) >= need {
		return nil
	}
	newCap := cap(*buf)
	if newCap == 0 {
		newCap = 4096
	}
	for newCap < need {
		newCap *= 2
	}
	if newCap > maxSize {
		if need > maxSize {
			return ErrFrameTooLarge
		}
		newCap = maxSize
	}
	grown := make([]byte, len(*buf), newCap)
	copy(grown, *buf)
	*buf = grown
	return nil
}

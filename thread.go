package connio

import (
	"sync"
	"sync/atomic"
)

// externalBudget bounds how many externally submitted events are
// drained into a single tick, so a hot Submit() caller cannot starve
// the selector poll indefinitely.
const externalBudget = 1024

// ReadyHandler is the readiness hook a thread specialization passes to
// NewThread. Thread stores it but does not call it itself: readiness
// reaches a specialization through the per-fd callbacks it gives to the
// poller's RegisterFD (IOThread's callbacks call its onReady).
// DispatchThread passes nil.
type ReadyHandler func(events IOEvents, conn *Connection)

// Thread is the single-goroutine, selector-backed scheduler underlying
// both the dispatch thread and every I/O thread. It owns one OS poller,
// one external (foreign-goroutine) submission inbox, and a status/event
// handler table used to dispatch every drained Event.
type Thread struct {
	name string

	state *FastState

	externalMu sync.Mutex
	external   *ChunkedIngress
	internal   *ChunkedIngress // owner-goroutine only, no lock needed

	poller FastPoller

	table   *StateTable
	onReady ReadyHandler

	// threadLevelHandler handles connection-less event kinds specific to
	// a thread specialization (e.g. KindGetBoundAddresses on a
	// DispatchThread). Returning false falls through to ErrNoHandler.
	threadLevelHandler func(ev Event) (handled bool)

	futures *futureRegistry
	cancel  *CancelController

	logger Logger

	selectTimeoutMs int

	mu    sync.Mutex
	owned map[*Connection]struct{}

	goroutineID atomic.Uint64
	done        chan struct{}
	closeOnce   sync.Once

	wakeFd      int
	wakeWriteFd int
	fastWakeCh  chan struct{}
}

// NewThread constructs and initializes a Thread. The caller must call
// Start to begin running it.
func NewThread(name string, table *StateTable, onReady ReadyHandler, cfg Config, logger Logger) (*Thread, error) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	t := &Thread{
		name:            name,
		state:           NewFastState(),
		external:        NewChunkedIngress(),
		internal:        NewChunkedIngress(),
		table:           table,
		onReady:         onReady,
		futures:         newFutureRegistry(),
		cancel:          NewCancelController(),
		logger:          logger,
		selectTimeoutMs: cfg.SelectTimeoutMs,
		owned:           make(map[*Connection]struct{}),
		done:            make(chan struct{}),
		fastWakeCh:      make(chan struct{}, 1),
	}
	if err := t.poller.Init(); err != nil {
		return nil, &ThreadError{Message: "poller init failed", Cause: err}
	}
	rfd, wfd, err := createWakeFd(0, 0)
	if err != nil {
		_ = t.poller.Close()
		return nil, &ThreadError{Message: "wake fd init failed", Cause: err}
	}
	t.wakeFd = rfd
	t.wakeWriteFd = wfd
	if err := t.poller.RegisterFD(rfd, EventRead, func(IOEvents) {
		drainWakeUpPipe(rfd)
	}); err != nil {
		_ = closeWakeFd(rfd, wfd)
		_ = t.poller.Close()
		return nil, &ThreadError{Message: "wake fd registration failed", Cause: err}
	}
	return t, nil
}

// Start begins running the thread's loop on a new goroutine.
func (t *Thread) Start() error {
	if !t.state.TryTransition(ThreadAwake, ThreadRunning) {
		return &ThreadError{Message: "thread already started"}
	}
	ready := make(chan struct{})
	go t.run(ready)
	<-ready
	return nil
}

// CancelSignal exposes the thread's cancellation signal so connections
// it owns can observe the shutdown cause.
func (t *Thread) CancelSignal() *CancelSignal { return t.cancel.Signal() }

// Submit enqueues ev for processing on the owning goroutine. Safe to
// call from any goroutine.
func (t *Thread) Submit(ev Event) error {
	if !t.state.CanAcceptWork() {
		return ErrThreadTerminated
	}
	t.externalMu.Lock()
	if !t.state.CanAcceptWork() {
		t.externalMu.Unlock()
		return ErrThreadTerminated
	}
	t.external.Push(func() { t.dispatch(ev) })
	t.externalMu.Unlock()
	t.wake()
	return nil
}

// Request enqueues an event and returns a Future settled by its handler.
func (t *Thread) Request(kind EventKind, conn *Connection, payload any) (*Future, error) {
	_, f := t.futures.New()
	ev := Event{Kind: kind, Conn: conn, Payload: payload, Future: f}
	if err := t.Submit(ev); err != nil {
		f.Reject(err)
		return f, err
	}
	return f, nil
}

// Close requests orderly shutdown with cause (ErrThreadClosed if nil)
// and blocks until the thread's goroutine has exited.
func (t *Thread) Close(cause error) error {
	t.closeOnce.Do(func() {
		t.cancel.Cancel(cause)
		t.state.TransitionAny([]ThreadState{ThreadRunning, ThreadSleeping, ThreadAwake}, ThreadTerminating)
		t.wake()
	})
	<-t.done
	return nil
}

func (t *Thread) isOwnerGoroutine() bool {
	return currentGoroutineID() == t.goroutineID.Load()
}

// track/untrack maintain the set of connections currently owned by this
// thread, backing GetConnections.
func (t *Thread) track(c *Connection) {
	t.mu.Lock()
	t.owned[c] = struct{}{}
	t.mu.Unlock()
}

func (t *Thread) untrack(c *Connection) {
	t.mu.Lock()
	delete(t.owned, c)
	t.mu.Unlock()
}

func (t *Thread) connections() []*Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Connection, 0, len(t.owned))
	for c := range t.owned {
		out = append(out, c)
	}
	return out
}

// run is the thread's main cycle: drain inbox, dispatch, poll, repeat,
// until Close fires the cancellation signal.
func (t *Thread) run(ready chan struct{}) {
	t.goroutineID.Store(currentGoroutineID())
	close(ready)
	defer close(t.done)

	for {
		if t.cancel.Signal().Canceled() {
			t.shutdown()
			return
		}

		t.processExternal()
		t.processInternal()

		t.state.TryTransition(ThreadRunning, ThreadSleeping)
		n, err := t.poller.PollIO(t.selectTimeoutMs)
		t.state.TryTransition(ThreadSleeping, ThreadRunning)
		if err != nil {
			t.logger.Log(LevelError, "poll error", map[string]any{"thread": t.name, "error": err})
		}
		_ = n
	}
}

func (t *Thread) processExternal() {
	t.externalMu.Lock()
	if t.internal.Empty() {
		t.external, t.internal = t.internal, t.external
	}
	t.externalMu.Unlock()
	t.internal.DrainAll(externalBudget)
}

func (t *Thread) processInternal() {
	// Tasks queued by handlers re-entrantly (e.g. KindDispatch handing a
	// connection to a different thread's external queue) land on the
	// *other* thread's external queue, never this one's internal queue,
	// so a single drain per tick suffices.
}

func (t *Thread) dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Log(LevelError, "handler panic", map[string]any{"thread": t.name, "panic": r})
			if ev.Future != nil {
				ev.Future.Reject(PanicError{Value: r})
			}
		}
	}()

	if ev.Conn == nil {
		t.dispatchThreadLevel(ev)
		return
	}

	status := ev.Conn.Status()
	if err := t.table.Dispatch(status, ev.Conn, ev); err != nil {
		ev.Conn.forceError(err)
		if ev.Future != nil {
			ev.Future.Reject(err)
		}
		if err == ErrNoHandler && ev.Kind != KindErr {
			_ = t.table.Dispatch(status, ev.Conn, Event{Kind: KindErr, Conn: ev.Conn, Cause: err})
		}
		return
	}
}

func (t *Thread) dispatchThreadLevel(ev Event) {
	switch ev.Kind {
	case KindGetConnections:
		if ev.Future != nil {
			ev.Future.Resolve(t.connections())
		}
	case KindShutdown:
		cause := ev.Cause
		if cause == nil {
			cause = ErrThreadClosed
		}
		t.cancel.Cancel(cause)
		if ev.Future != nil {
			ev.Future.Resolve(nil)
		}
	default:
		if t.threadLevelHandler != nil && t.threadLevelHandler(ev) {
			return
		}
		if ev.Future != nil {
			ev.Future.Reject(ErrNoHandler)
		}
	}
}

// wake interrupts a blocked PollIO call from any goroutine.
func (t *Thread) wake() {
	select {
	case t.fastWakeCh <- struct{}{}:
	default:
	}
	_ = submitGenericWakeup(uintptr(t.wakeWriteFd))
}

func (t *Thread) shutdown() {
	cause := t.cancel.Signal().Cause()
	if cause == nil {
		cause = ErrThreadClosed
	}
	for _, c := range t.connections() {
		c.forceError(cause)
		_ = c.closeLocked(cause)
	}
	t.futures.RejectAll(cause)
	_ = closeWakeFd(t.wakeFd, t.wakeWriteFd)
	_ = t.poller.Close()
	t.state.Store(ThreadTerminated)
}

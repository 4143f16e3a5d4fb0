package connio

import (
	"net"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
)

// acceptEntry tracks one bound listening address: its underlying
// listening socket fd and the ordered set of connections currently
// registered to receive the next accepted socket from it. Multiple
// Register calls against the same resolved address share a single
// entry and listening socket — the coalescing invariant the dispatch
// thread's accept-readiness handler relies on.
type acceptEntry struct {
	addr    net.Addr
	fd      int
	pending []*Connection
}

// AcceptRegistry is the dispatch thread's address -> entry map (spec
// component C2). An entry exists iff its listening socket is open and
// registered with the dispatch thread's selector.
type AcceptRegistry struct {
	mu      sync.Mutex
	entries map[string]*acceptEntry
	limiter *catrate.Limiter
	poller  *FastPoller
}

// NewAcceptRegistry returns an empty registry bound to poller — the
// dispatch thread's selector, used to unregister a listening socket's
// key before it is closed (poller.go's own UnregisterFD-before-close
// contract). If rates is non-empty, accepts are additionally capped per
// bound address via a github.com/joeycumines/go-catrate sliding-window
// limiter, on top of the registry's own pending-queue coalescing.
func NewAcceptRegistry(poller *FastPoller, rates map[time.Duration]int) *AcceptRegistry {
	r := &AcceptRegistry{entries: make(map[string]*acceptEntry), poller: poller}
	if len(rates) > 0 {
		r.limiter = catrate.NewLimiter(rates)
	}
	return r
}

// Register adds conn to the pending set for addr, creating (and
// listening on) the underlying socket the first time addr is seen.
// Resolved wildcard ports (":0") are rejected: every caller sharing an
// entry must agree on a concrete port up front.
func (r *AcceptRegistry) Register(conn *Connection, addr net.Addr) (fd int, firstForAddr bool, err error) {
	if tcp, ok := addr.(*net.TCPAddr); ok && tcp.Port == 0 {
		return -1, false, ErrWildcardPort
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := addr.String()
	entry, ok := r.entries[key]
	if !ok {
		lfd, err := bindListener(addr, defaultBacklog)
		if err != nil {
			return -1, false, &SocketError{Op: "listen", Message: addr.String(), Cause: err}
		}
		entry = &acceptEntry{addr: addr, fd: lfd}
		r.entries[key] = entry
		firstForAddr = true
	}
	entry.pending = append(entry.pending, conn)
	return entry.fd, firstForAddr, nil
}

// RemovePending removes conn from whichever entry's pending set it is
// in. If the entry's pending set becomes empty, its listening socket is
// released and the entry is dropped.
func (r *AcceptRegistry) RemovePending(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.entries {
		for i, c := range entry.pending {
			if c == conn {
				entry.pending = append(entry.pending[:i], entry.pending[i+1:]...)
				if len(entry.pending) == 0 {
					if r.poller != nil {
						_ = r.poller.UnregisterFD(entry.fd)
					}
					_ = closeFD(entry.fd)
					delete(r.entries, key)
				}
				return
			}
		}
	}
}

// Addresses returns every currently bound address.
func (r *AcceptRegistry) Addresses() []net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]net.Addr, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.addr)
	}
	return out
}

// entryByFD finds the entry for a ready listening fd.
func (r *AcceptRegistry) entryByFD(fd int) (*acceptEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.fd == fd {
			return e, true
		}
	}
	return nil, false
}

// popPending removes and returns the head of entry's pending queue.
func (r *AcceptRegistry) popPending(entry *acceptEntry) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(entry.pending) == 0 {
		return nil, false
	}
	c := entry.pending[0]
	entry.pending = entry.pending[1:]
	return c, true
}

// allow reports whether an accept against addr should proceed right
// now, consulting the rate limiter if one is configured.
func (r *AcceptRegistry) allow(addr net.Addr) bool {
	if r.limiter == nil {
		return true
	}
	_, ok := r.limiter.Allow(addr.String())
	return ok
}

const defaultBacklog = 128

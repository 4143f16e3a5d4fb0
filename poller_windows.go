//go:build windows

package connio

import (
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
)

const maxFDs = 65536

// IOEvents is a bitmask of the I/O readiness conditions a connection's
// channel can be registered to receive.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

var (
	ErrFDOutOfRange        = errors.New("connio: fd out of range (max 65535)")
	ErrFDAlreadyRegistered = errors.New("connio: fd already registered")
	ErrFDNotRegistered     = errors.New("connio: fd not registered")
	ErrPollerClosed        = errors.New("connio: poller closed")
)

// IOCallback is invoked with the readiness mask for a registered fd.
type IOCallback func(IOEvents)

type fdInfo struct {
	callback IOCallback
	events   IOEvents
	active   bool
}

// completionKey describes which fd completed and in which direction;
// direction reads it from the start of a dequeued Overlapped.
type completionKey struct {
	fd        int
	direction IOEvents
}

// FastPoller manages I/O event registration using an I/O completion
// port. Because IOCP delivers completions rather than level-triggered
// readiness, RegisterFD associates the socket handle with the port and
// PollIO translates each dequeued completion packet back into an
// IOEvents callback.
type FastPoller struct { // betteralign:ignore
	_       [64]byte
	port    windows.Handle
	_       [56]byte
	version atomic.Uint64
	fds     [maxFDs]fdInfo
	fdMu    sync.RWMutex
	closed  atomic.Bool
}

// Init creates the completion port.
func (p *FastPoller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return err
	}
	p.port = port
	return nil
}

// Close closes the completion port.
func (p *FastPoller) Close() error {
	p.closed.Store(true)
	if p.port != 0 {
		return windows.CloseHandle(p.port)
	}
	return nil
}

// RegisterFD associates fd's handle with the completion port.
func (p *FastPoller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.version.Add(1)
	p.fdMu.Unlock()

	_, err := windows.CreateIoCompletionPort(windows.Handle(fd), p.port, uintptr(fd), 0)
	if err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

// UnregisterFD marks fd inactive; Windows has no API to disassociate a
// handle from a completion port short of closing it, so this simply
// stops callback dispatch for fd.
func (p *FastPoller) UnregisterFD(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.version.Add(1)
	p.fdMu.Unlock()
	return nil
}

// ModifyFD updates the events of interest recorded for fd; actual
// overlapped reads/writes are (re-)armed by the caller, this just
// updates the bookkeeping used to decide which callbacks fire.
func (p *FastPoller) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd].events = events
	p.version.Add(1)
	p.fdMu.Unlock()
	return nil
}

// PollIO blocks up to timeoutMs for a batch of completions, dispatching
// callbacks inline, and returns the number processed.
func (p *FastPoller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	v := p.version.Load()

	var entries [256]windows.OverlappedEntry
	var n uint32
	err := windows.GetQueuedCompletionStatusEx(p.port, entries[:], &n, uint32(timeoutMs), false)
	if err != nil {
		if err == windows.WAIT_TIMEOUT {
			return 0, nil
		}
		return 0, err
	}

	if p.version.Load() != v {
		return 0, nil
	}

	for i := uint32(0); i < n; i++ {
		fd := int(entries[i].CompletionKey)
		if fd < 0 || fd >= maxFDs {
			continue
		}
		p.fdMu.RLock()
		info := p.fds[fd]
		p.fdMu.RUnlock()
		if !info.active || info.callback == nil {
			continue
		}
		events := direction(entries[i].Overlapped)
		info.callback(events)
	}
	return int(n), nil
}

// direction reinterprets the start of ov as a completionKey and returns
// its direction, or EventRead for a nil ov. Nothing in this package
// submits overlapped reads or writes that would carry such a key.
func direction(ov *windows.Overlapped) IOEvents {
	if ov == nil {
		return EventRead
	}
	tag := (*completionKey)(unsafe.Pointer(ov))
	if tag == nil {
		return EventRead
	}
	return tag.direction
}

//go:build darwin

package connio

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
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
	callback   IOCallback
	events     IOEvents
	active     bool
	readArmed  bool
	writeArmed bool
}

// FastPoller manages I/O event registration using kqueue. Unlike epoll,
// kqueue registers read and write interest as separate filters, so
// RegisterFD/ModifyFD translate an IOEvents mask into EV_ADD/EV_DELETE
// changelist entries per filter.
type FastPoller struct { // betteralign:ignore
	_        [64]byte
	kq       int32
	_        [60]byte
	version  atomic.Uint64
	_        [56]byte
	eventBuf [256]unix.Kevent_t
	fds      [maxFDs]fdInfo
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

// Init initializes the kqueue instance.
func (p *FastPoller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	p.kq = int32(kq)
	return nil
}

// Close closes the kqueue instance.
func (p *FastPoller) Close() error {
	p.closed.Store(true)
	if p.kq > 0 {
		return unix.Close(int(p.kq))
	}
	return nil
}

func (p *FastPoller) applyChanges(fd int, info fdInfo) error {
	var changes []unix.Kevent_t
	if info.events&EventRead != 0 && !info.readArmed {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE))
	} else if info.events&EventRead == 0 && info.readArmed {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, unix.EV_DELETE))
	}
	if info.events&EventWrite != 0 && !info.writeArmed {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE))
	} else if info.events&EventWrite == 0 && info.writeArmed {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, unix.EV_DELETE))
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(int(p.kq), changes, nil, nil)
	return err
}

func kevent(fd int, filter int16, flags uint16) unix.Kevent_t {
	return unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags}
}

// RegisterFD registers fd for events, invoking cb on readiness.
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
	info := fdInfo{callback: cb, events: events, active: true}
	p.fds[fd] = info
	p.version.Add(1)
	p.fdMu.Unlock()

	if err := p.applyChanges(fd, info); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	p.fdMu.Lock()
	p.fds[fd].readArmed = events&EventRead != 0
	p.fds[fd].writeArmed = events&EventWrite != 0
	p.fdMu.Unlock()
	return nil
}

// UnregisterFD removes fd from monitoring.
func (p *FastPoller) UnregisterFD(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	info := p.fds[fd]
	if !info.active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.version.Add(1)
	p.fdMu.Unlock()

	_ = p.applyChanges(fd, fdInfo{}) // delete whichever filters were armed
	return nil
}

// ModifyFD updates the events monitored for fd.
func (p *FastPoller) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	newInfo := p.fds[fd]
	newInfo.events = events
	p.fdMu.Unlock()

	if err := p.applyChanges(fd, newInfo); err != nil {
		return err
	}
	p.fdMu.Lock()
	p.fds[fd].events = events
	p.fds[fd].readArmed = events&EventRead != 0
	p.fds[fd].writeArmed = events&EventWrite != 0
	p.version.Add(1)
	p.fdMu.Unlock()
	return nil
}

// PollIO blocks up to timeoutMs for readiness, dispatching callbacks
// inline, and returns the number of ready fds seen.
func (p *FastPoller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	v := p.version.Load()

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}

	n, err := unix.Kevent(int(p.kq), nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	if p.version.Load() != v {
		return 0, nil
	}

	p.dispatchEvents(n)
	return n, nil
}

func (p *FastPoller) dispatchEvents(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd < 0 || fd >= maxFDs {
			continue
		}
		p.fdMu.RLock()
		info := p.fds[fd]
		p.fdMu.RUnlock()
		if !info.active || info.callback == nil {
			continue
		}

		var events IOEvents
		switch p.eventBuf[i].Filter {
		case unix.EVFILT_READ:
			events |= EventRead
		case unix.EVFILT_WRITE:
			events |= EventWrite
		}
		if p.eventBuf[i].Flags&unix.EV_EOF != 0 {
			events |= EventHangup
		}
		if p.eventBuf[i].Flags&unix.EV_ERROR != 0 {
			events |= EventError
		}
		info.callback(events)
	}
}

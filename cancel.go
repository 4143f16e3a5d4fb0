// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package connio

import "sync"

// CancelSignal reports and propagates a single close/shutdown cause.
// Once canceled it stays canceled: Cause() always returns the first
// cause given to the controller, and every handler registered via
// OnCancel — before or after the abort — is invoked with it.
type CancelSignal struct {
	mu       sync.RWMutex
	handlers []func(cause error)
	cause    error
	canceled bool
}

// Canceled reports whether the signal has fired.
func (s *CancelSignal) Canceled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canceled
}

// Cause returns the cancellation cause, or nil if not yet canceled.
func (s *CancelSignal) Cause() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cause
}

// OnCancel registers handler to run when the signal fires. If the
// signal has already fired, handler runs immediately (synchronously,
// on the calling goroutine).
func (s *CancelSignal) OnCancel(handler func(cause error)) {
	s.mu.Lock()
	if s.canceled {
		cause := s.cause
		s.mu.Unlock()
		handler(cause)
		return
	}
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
}

// ThrowIfCanceled returns a ProtocolError wrapping the cause if the
// signal has fired, else nil.
func (s *CancelSignal) ThrowIfCanceled() error {
	if cause := s.Cause(); cause != nil {
		return &ProtocolError{Message: "operation canceled", Cause: cause}
	}
	return nil
}

// cancel fires the signal with cause, idempotently. Handlers are
// snapshotted under lock and invoked outside it so a handler registering
// another handler, or calling back into the controller, cannot deadlock.
func (s *CancelSignal) cancel(cause error) {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	s.canceled = true
	s.cause = cause
	handlers := s.handlers
	s.handlers = nil
	s.mu.Unlock()

	for _, h := range handlers {
		h(cause)
	}
}

// CancelController is the write side of a CancelSignal: only the holder
// of the controller may fire it.
type CancelController struct {
	signal *CancelSignal
}

// NewCancelController returns a controller with a fresh, un-fired signal.
func NewCancelController() *CancelController {
	return &CancelController{signal: &CancelSignal{}}
}

// Signal returns the read-only signal associated with this controller.
func (c *CancelController) Signal() *CancelSignal { return c.signal }

// Cancel fires the signal with cause. If cause is nil, ErrThreadClosed
// is used. Cancel is idempotent: only the first call's cause sticks.
func (c *CancelController) Cancel(cause error) {
	if cause == nil {
		cause = ErrThreadClosed
	}
	c.signal.cancel(cause)
}

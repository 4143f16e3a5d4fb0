package connio

import (
	"errors"
	"fmt"
)

// Sentinel errors usable with errors.Is.
var (
	// ErrThreadClosed is the default cause used when a Thread is closed
	// without an explicit cause.
	ErrThreadClosed = errors.New("connio: thread closed")

	// ErrThreadTerminated is returned by Submit/Request once a Thread has
	// begun shutting down (it is terminating or terminated).
	ErrThreadTerminated = errors.New("connio: thread terminated")

	// ErrFrameTooLarge is raised when a connection's read or write buffer
	// would need to grow beyond its configured maximum size.
	ErrFrameTooLarge = errors.New("connio: frame exceeds maximum buffer size")

	// ErrWildcardPort is returned by the accept registry when asked to
	// register a listening address with an unresolved (":0") port.
	ErrWildcardPort = errors.New("connio: wildcard port not permitted")

	// ErrConnectFailed is raised when a non-blocking connect fails to
	// complete after a retry (see the FinishConnect redesign note).
	ErrConnectFailed = errors.New("connio: connect failed to complete")

	// ErrNoHandler is raised when the state table has no entry for the
	// (status, event kind) pair being dispatched, after wildcard
	// resolution — a protocol violation.
	ErrNoHandler = errors.New("connio: no handler for state and event")

	// ErrAlreadyClosed is returned when Close is called on a connection
	// that has already reached StatusClosed.
	ErrAlreadyClosed = errors.New("connio: connection already closed")
)

// ArgumentError reports a caller supplied an argument of the wrong shape
// (nil, wrong type, out of range) to a public API.
type ArgumentError struct {
	Message string
	Cause   error
}

func (e *ArgumentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connio: argument error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connio: argument error: %s", e.Message)
}

func (e *ArgumentError) Unwrap() error { return e.Cause }

// SocketError wraps a failure returned by the underlying network stack
// (accept, connect, read, write, socket option calls).
type SocketError struct {
	Op      string
	Message string
	Cause   error
}

func (e *SocketError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connio: socket error during %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("connio: socket error during %s: %s", e.Op, e.Message)
}

func (e *SocketError) Unwrap() error { return e.Cause }

// ProtocolError reports that a connection violated the protocol this
// package expects of it: an out-of-band frame too large to buffer, a
// state-table dispatch miss, a connect that never actually completes.
type ProtocolError struct {
	Message string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connio: protocol violation: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connio: protocol violation: %s", e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// ThreadError reports a fatal condition in a Thread's own machinery
// (selector init/close failure, wakeup plumbing failure). A ThreadError
// always forces the owning thread toward StateTerminating.
type ThreadError struct {
	Message string
	Cause   error
}

func (e *ThreadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connio: thread error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connio: thread error: %s", e.Message)
}

func (e *ThreadError) Unwrap() error { return e.Cause }

// PanicError wraps a panic value recovered while running a handler or a
// Request/Submit task.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("connio: handler panicked: %v", e.Value)
}

// AggregateError combines multiple errors raised while closing or
// tearing down several connections at once (e.g. manager shutdown).
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("connio: %d errors occurred, first: %v", len(e.Errors), e.Errors[0])
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// WrapError wraps cause with a message, preserving it for errors.Is/As.
func WrapError(message string, cause error) error {
	if cause == nil {
		return errors.New(message)
	}
	return fmt.Errorf("%s: %w", message, cause)
}

package connio

import "sync/atomic"

// ThreadState represents the lifecycle state of a Thread (the selector
// goroutine itself, not any one connection's status).
//
// State Machine (Performance-First Design):
//
//	ThreadAwake (0) → ThreadRunning (3)      [Start()]
//	ThreadRunning (3) → ThreadSleeping (2)   [poll() via CAS]
//	ThreadRunning (3) → ThreadTerminating (4) [Close()]
//	ThreadSleeping (2) → ThreadRunning (3)   [poll() wake via CAS]
//	ThreadSleeping (2) → ThreadTerminating (4) [Close()]
//	ThreadTerminating (4) → ThreadTerminated (1) [shutdown complete]
//	ThreadTerminated (1) → (terminal)
//
// State Transition Rules:
//   - Use TryTransition() (CAS) for temporary states (Running, Sleeping)
//   - Use Store() for irreversible states (Terminated)
//   - Using Store(Running) or Store(Sleeping) is a bug (breaks CAS logic)
type ThreadState uint64

const (
	ThreadAwake       ThreadState = 0
	ThreadTerminated  ThreadState = 1
	ThreadSleeping    ThreadState = 2
	ThreadRunning     ThreadState = 3
	ThreadTerminating ThreadState = 4
)

// String returns a human-readable representation of the state.
func (s ThreadState) String() string {
	switch s {
	case ThreadAwake:
		return "Awake"
	case ThreadRunning:
		return "Running"
	case ThreadSleeping:
		return "Sleeping"
	case ThreadTerminating:
		return "Terminating"
	case ThreadTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// FastState is a lock-free state machine with cache-line padding.
//
// PERFORMANCE: Uses pure atomic CAS operations with no mutex.
// Cache-line padding prevents false sharing between cores.
type FastState struct { // betteralign:ignore
	_ [64]byte      // Cache line padding (before value) //nolint:unused
	v atomic.Uint64 // State value
	_ [56]byte      // Pad to complete cache line (64 - 8 = 56) //nolint:unused
}

// NewFastState creates a new state machine in the Awake state.
func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(uint64(ThreadAwake))
	return s
}

// Load returns the current state atomically.
func (s *FastState) Load() ThreadState {
	return ThreadState(s.v.Load())
}

// Store atomically stores a new state, bypassing transition validation.
func (s *FastState) Store(state ThreadState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to
// another. Returns true if the transition was successful.
func (s *FastState) TryTransition(from, to ThreadState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// TransitionAny attempts to transition from any valid source state to
// the target. Returns true if the transition was successful.
func (s *FastState) TransitionAny(validFrom []ThreadState, to ThreadState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint64(from), uint64(to)) {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the current state is terminal.
func (s *FastState) IsTerminal() bool {
	return s.Load() == ThreadTerminated
}

// IsRunning returns true if the thread is currently running or sleeping.
func (s *FastState) IsRunning() bool {
	state := s.Load()
	return state == ThreadRunning || state == ThreadSleeping
}

// CanAcceptWork returns true if the thread can accept new work.
func (s *FastState) CanAcceptWork() bool {
	state := s.Load()
	return state == ThreadAwake || state == ThreadRunning || state == ThreadSleeping
}

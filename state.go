package carrier

import (
	"sync/atomic"
)

// TaskStatus is a Task's position in the NEW → RUNNABLE ⇄ PARKED → ZOMBIE
// lifecycle (§3, §4.1.8).
//
// State Transition Rules:
//   - NEW → RUNNABLE: first yieldTo.
//   - RUNNABLE → PARKED: inside schedule(), before switching control to
//     the target.
//   - PARKED → RUNNABLE: dispatch of a resumeEntry (possibly after steal).
//   - RUNNABLE → ZOMBIE: taskExit.
//   - From ZOMBIE: only recycled via reset, which re-creates a logically
//     new task on the same context.
//
// Use TryTransition (CAS) for the reversible RUNNABLE⇄PARKED edge; use
// Store for the irreversible NEW→RUNNABLE and →ZOMBIE edges.
type TaskStatus uint64

const (
	// TaskNew is the state of a task that has never been yielded to.
	TaskNew TaskStatus = 0
	// TaskRunnable is the state of a task currently executing, or eligible
	// to be dispatched by a resumeEntry.
	TaskRunnable TaskStatus = 1
	// TaskParked is the state of a task that has suspended inside
	// schedule() and is waiting on a resumeEntry.
	TaskParked TaskStatus = 2
	// TaskZombie is the terminal state, reached via taskExit. A ZOMBIE task
	// is never yielded to or resumed; attempts are rejected.
	TaskZombie TaskStatus = 3
)

// String returns a human-readable representation of the status.
func (s TaskStatus) String() string {
	switch s {
	case TaskNew:
		return "new"
	case TaskRunnable:
		return "runnable"
	case TaskParked:
		return "parked"
	case TaskZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// FastState is a lock-free state machine with cache-line padding, used for
// Task.status. The Engine/Carrier shutdown latches use shutdownFlag.
//
// PERFORMANCE: pure atomic CAS, no mutex. Cache-line padding prevents false
// sharing between cores that poll adjacent Task/Carrier fields.
type FastState struct { // betteralign:ignore
	_ [64]byte      // cache line padding (before value) //nolint:unused
	v atomic.Uint64 // state value
	_ [56]byte      // pad to complete cache line (64 - 8 = 56) //nolint:unused
}

// NewFastState creates a new state machine initialized to v.
func NewFastState(v TaskStatus) *FastState {
	s := &FastState{}
	s.v.Store(uint64(v))
	return s
}

// Load returns the current state atomically.
func (s *FastState) Load() TaskStatus {
	return TaskStatus(s.v.Load())
}

// Store atomically stores a new state, bypassing transition validation.
// Used for the irreversible NEW→RUNNABLE and →ZOMBIE edges.
func (s *FastState) Store(state TaskStatus) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to
// another, returning true on success. Used for the reversible
// RUNNABLE⇄PARKED edge.
func (s *FastState) TryTransition(from, to TaskStatus) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsZombie reports whether the state is TaskZombie.
func (s *FastState) IsZombie() bool {
	return s.Load() == TaskZombie
}

// shutdownFlag is a lock-free, monotonic "has this shut down" latch used by
// both Engine.hasBeenShutdown and the per-Carrier terminated flag (§4.1, §5).
type shutdownFlag struct {
	v atomic.Bool
}

// Set latches the flag. Idempotent; returns true the first time it
// transitions false→true, so callers can run shutdown-initiation exactly
// once.
func (f *shutdownFlag) Set() (first bool) {
	return f.v.CompareAndSwap(false, true)
}

// IsSet reports whether the flag has been latched.
func (f *shutdownFlag) IsSet() bool {
	return f.v.Load()
}

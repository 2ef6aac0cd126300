// Package carrier error types, with cause chain support.
package carrier

import (
	"errors"
	"fmt"
)

// Rejected is returned by [Carrier.Spawn] when the owning [Engine] has
// already been shut down and the spawn is not for the distinguished
// SHUTDOWN task.
type Rejected struct {
	Cause error
	Name  string
}

// Error implements the error interface.
func (e *Rejected) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("carrier: spawn %q rejected: engine shut down", e.Name)
	}
	return "carrier: spawn rejected: engine shut down"
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *Rejected) Unwrap() error {
	return e.Cause
}

// StealOutcome classifies the result of a steal attempt.
type StealOutcome int

const (
	// StealSuccess indicates the task's ownership was transferred.
	StealSuccess StealOutcome = iota
	// StealFailByStatus indicates the engine is draining and new ownership
	// transfers are refused, or the task has already exited.
	StealFailByStatus
	// StealFailByContention indicates the task was not yet safely parked;
	// retryable.
	StealFailByContention
)

// String returns a human-readable name for the outcome.
func (o StealOutcome) String() string {
	switch o {
	case StealSuccess:
		return "success"
	case StealFailByStatus:
		return "fail_by_status"
	case StealFailByContention:
		return "fail_by_contention"
	default:
		return "unknown"
	}
}

// StealFailure is returned when a carrier's steal does not transfer ownership.
type StealFailure struct {
	Cause   error
	Outcome StealOutcome
}

// Error implements the error interface.
func (e *StealFailure) Error() string {
	return fmt.Sprintf("carrier: steal failed: %s", e.Outcome)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *StealFailure) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller should re-wake the entry on its
// origin carrier and try again later, per §4.1.6.
func (e *StealFailure) Retryable() bool {
	return e.Outcome == StealFailByContention
}

// InvalidState indicates a programming error in carrier usage: yielding to
// self, yielding to an exited task, calling Schedule or Yield outside a
// task or from a task that isn't runnable, and similar assertion-domain
// violations. It is fatal: the
// carrier that raises it should not continue scheduling.
type InvalidState struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *InvalidState) Error() string {
	if e.Message == "" {
		return "carrier: invalid state"
	}
	return "carrier: invalid state: " + e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *InvalidState) Unwrap() error {
	return e.Cause
}

// ShutdownRaise is the error [Carrier.Schedule] returns to every
// non-SHUTDOWN task it resumes once the engine has begun draining. Schedule
// creates it from the engine's shutdown flag; it isn't stored on the task.
type ShutdownRaise struct {
	Cause error
}

// Error implements the error interface.
func (e *ShutdownRaise) Error() string {
	return "carrier: engine shutdown in progress"
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *ShutdownRaise) Unwrap() error {
	return e.Cause
}

// Is reports whether target is also a *ShutdownRaise, regardless of cause.
func (e *ShutdownRaise) Is(target error) bool {
	var other *ShutdownRaise
	return errors.As(target, &other)
}

// WrapError wraps an error with a message and optional cause chain.
//
// If the original error should be the cause, pass it as both arguments:
//
//	WrapError("context failed", originalErr)
//
// The result satisfies errors.Is(result, originalErr) == true.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

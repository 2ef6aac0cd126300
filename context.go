package carrier

import (
	"runtime"
	"sync/atomic"
)

// This file implements the low-level coroutine primitive that §6 and §9
// describe as an assumed black box: newContext(), switch(from, to),
// ctx.steal(bool), and checkAndThrowException(ctx). Go has no portable
// stackful-coroutine switch, so each Task is backed by a dedicated
// goroutine parked on an unbuffered channel, and switch is a synchronous
// handoff between two such channels. The run-loop task is the exception:
// its "goroutine" is whichever OS thread is executing the Carrier's Run
// loop, so switching to it is just handing control back to that loop.
//
// Using an unbuffered channel means a completed send is, by construction,
// proof the receiver reached its matching receive, the same guarantee
// §9's stealLock busy-wait provides at register-save granularity. The
// stealLock field exists for the earlier window: between a task deciding
// to park (Schedule sets stealLock) and that task's goroutine actually
// reaching the blocking receive.

// taskContext is the opaque "ctx" of §3/§6: the dedicated goroutine's
// control channel plus a flag recording that the goroutine has started a
// target. The steal-contention guard is Task.stealLock.
type taskContext struct {
	resumeCh chan struct{}
	started  atomic.Bool
}

func newTaskContext() *taskContext {
	return &taskContext{resumeCh: make(chan struct{})}
}

// ctxSwitchPark performs switch(from, to) for a task that expects to be
// resumed again later: it hands control to to, then blocks from's
// goroutine on its own channel until some carrier resumes it.
//
// Must be called from the goroutine currently executing as from (i.e.
// from's own dedicated goroutine, or the Carrier's run loop goroutine
// when from is the run-loop task).
func ctxSwitchPark(from, to *Task) {
	to.ctx.resumeCh <- struct{}{}
	from.stealLock.Store(0)
	<-from.ctx.resumeCh
}

// ctxSwitchHandoff performs the tail-call variant of switch used by
// taskExit (§4.1.8): it hands control to to and returns immediately,
// without blocking. The exiting task's dedicated goroutine loop (see
// task.go's runLoop) provides the equivalent of the blocking receive by
// looping back to wait for its next (recycled) resume.
func ctxSwitchHandoff(to *Task) {
	to.ctx.resumeCh <- struct{}{}
}

// ctxStealAcquire spins while t's stealLock is held, i.e. while t has
// decided to park but has not yet reached the blocking receive in
// ctxSwitchPark. Once it returns, the caller may safely reassign
// t.carrier: the unbuffered channel handshake in ctxSwitchPark makes the
// actual resume safe regardless of the precise interleaving; this spin
// only bounds how long a steal waits to observe "safely parked" before
// proceeding (§9, "Steal lock busy-wait").
func ctxStealAcquire(t *Task) {
	for t.stealLock.Load() != 0 {
		runtime.Gosched()
	}
}

// checkAndThrowException returns and clears any pending cross-task error
// stashed on t's context (§4.1.4, §7: ShutdownRaise). Idiomatic Go has no
// analogue for asynchronously raising into arbitrary code, so the
// carrier's resume path (Schedule, Yield) returns this as an ordinary
// error instead of unwinding the task's goroutine; propagating it to
// taskExit, per §9, is the target function's responsibility.
func checkAndThrowException(t *Task) error {
	if p := t.pendingErr.Swap(nil); p != nil {
		return *p
	}
	return nil
}

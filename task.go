package carrier

import (
	"context"
	"sync/atomic"
	"time"
)

// Task is a coroutine: a unit of execution backed by its own dedicated
// goroutine, together with the scheduling metadata the carrier needs to
// park, resume, steal, and eventually retire it (§3).
type Task struct { // betteralign:ignore
	ctx *taskContext

	status FastState

	carrier atomic.Pointer[Carrier]

	// parent is set only during a first-park chain (§4.1.4): the task
	// that spawned this one, to be yielded back to on the first
	// schedule(). Single-use; cleared the moment it's consumed.
	parent atomic.Pointer[Task]

	// resumeEntry is cleared by reset and not otherwise assigned: the
	// carrier builds a new ResumeEntry for each wakeup (wakeupTask) and
	// each deferred yield (runEpilog) instead.
	resumeEntry *ResumeEntry

	// isThreadTask is true iff this Task is its Carrier's distinguished
	// run-loop task.
	isThreadTask bool

	// stealLock is non-zero while a steal of this task is forbidden: set
	// by Schedule when the task decides to park, cleared by ctxSwitchPark
	// immediately before the task's goroutine blocks on its resume channel.
	stealLock atomic.Int32

	stealCount        atomic.Uint64
	stealFailureCount atomic.Uint64

	// enqueueTime is set when wakeupTask hands a ResumeEntry for this task
	// to the scheduler, and cleared on dispatch, for steal latency
	// accounting.
	enqueueTime time.Time

	// timeOut is this task's active timer binding, if any (§4.1.12).
	timeOut *TimerBinding

	// registerEventTime marks when registerEvent was last called, for I/O
	// wait accounting.
	registerEventTime time.Time

	// ch is the channel this task is waiting on for I/O readiness; nil
	// when not registered. unregisterEvent clears it so a late readiness
	// notification cannot re-wake an unrelated reincarnation of a
	// recycled task.
	ch *pumpRegistration

	// threadWrapper is returned to user code that asks "what thread am I
	// on" while executing inside this task (§3).
	threadWrapper *Thread

	// target is the coroutine body. It receives the Task so it can call
	// back into the owning Carrier (via CurrentCarrier) to park, yield,
	// or register interest.
	target func(*Task)

	// name distinguishes the SHUTDOWN task (§4.1.2, §7) from ordinary
	// spawns; empty for user tasks that didn't name themselves.
	name string

	// userCtx is the Go context.Context associated with this task, for
	// cancellation propagation into user code; set by ctxLoader at reset
	// time.
	userCtx context.Context

	// pendingErr holds a cross-task exception (§4.1.4, §7: ShutdownRaise)
	// to be surfaced via checkAndThrowException on the task's next
	// resume. A pointer, not atomic.Value, since the common case stores
	// and swaps a nil value and atomic.Value panics on that.
	pendingErr atomic.Pointer[error]

	// exited is set once this task's dedicated goroutine should stop
	// looping, used only by destroy() to retire cached goroutines.
	exited atomic.Bool
}

// newTask allocates a fresh Task and starts its dedicated goroutine,
// which immediately blocks waiting for its first resume.
func newTask() *Task {
	t := &Task{ctx: newTaskContext()}
	t.status.Store(TaskNew)
	go t.runLoop()
	return t
}

// runLoop is the body of a Task's dedicated goroutine. It survives across
// recycling: reset() installs a new target function, and the next
// resume on ctx.resumeCh runs it, so the same goroutine and channel serve
// every incarnation cached under this *Task.
func (t *Task) runLoop() {
	for {
		<-t.ctx.resumeCh
		if t.exited.Load() {
			return
		}
		t.ctx.started.Store(true)
		c := t.carrier.Load()
		c.bindCurrentGoroutine()
		fn := t.target
		t.status.Store(TaskRunnable)
		fn(t)
		c = t.carrier.Load()
		c.taskExit(t)
	}
}

// reset prepares a NEW or recycled task to run target, per §4.1.2/§3.
// parent establishes the first-park chain; threadWrapper is the identity
// returned to user code asking "what thread am I on"; ctxLoader, if
// non-nil, builds the task's Go context.Context.
func (t *Task) reset(target func(*Task), parent *Task, name string, threadWrapper *Thread, ctxLoader func() context.Context) {
	t.target = target
	t.parent.Store(parent)
	t.name = name
	t.threadWrapper = threadWrapper
	if ctxLoader != nil {
		t.userCtx = ctxLoader()
	} else {
		t.userCtx = context.Background()
	}
	t.resumeEntry = nil
	t.timeOut = nil
	t.ch = nil
	t.enqueueTime = time.Time{}
	t.registerEventTime = time.Time{}
	t.stealCount.Store(0)
	t.stealFailureCount.Store(0)
	t.stealLock.Store(0)
	t.pendingErr.Store(nil)
	t.status.Store(TaskNew)
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() TaskStatus { return t.status.Load() }

// Carrier returns the carrier currently owning this task.
func (t *Task) Carrier() *Carrier { return t.carrier.Load() }

// Name returns the name given to this task at reset/spawn time.
func (t *Task) Name() string { return t.name }

// IsThreadTask reports whether this task is its carrier's run-loop task.
func (t *Task) IsThreadTask() bool { return t.isThreadTask }

// Context returns the task's associated Go context.Context.
func (t *Task) Context() context.Context { return t.userCtx }

// StealCount returns the number of times this task has been successfully
// stolen.
func (t *Task) StealCount() uint64 { return t.stealCount.Load() }

// raise stashes err as this task's pending cross-task exception, to be
// returned by the next Schedule()/Yield() call that observes it via
// checkAndThrowException.
func (t *Task) raise(err error) {
	t.pendingErr.Store(&err)
}

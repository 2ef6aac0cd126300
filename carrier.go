package carrier

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// CarrierStats is a point-in-time snapshot of a carrier's scheduling
// state, returned by Counter for external monitoring (SUPPLEMENTED
// FEATURES: carrier liveness/queue-depth metrics).
type CarrierStats struct {
	ID              int
	SchedTick       uint64
	QueueDepth      int
	LocalCacheDepth int
	Metrics         *CarrierMetrics
}

// Carrier is one scheduler slot: the OS-thread-bound (via
// runtime.LockOSThread) run loop that owns a fixed pool of Tasks, a
// work-stealing-eligible runqueue, a coarse timer wheel, and an I/O pump
// (§2, §3, §5).
type Carrier struct { // betteralign:ignore
	id       int
	engine   *Engine
	worker   *Worker
	thread   *Thread
	registry *CarrierRegistry
	pump     *Pump
	timers   *TimerWheel
	metrics  *CarrierMetrics

	// threadTask is this carrier's distinguished run-loop task: its
	// dedicated "goroutine" is whichever OS thread executes Run, not a
	// separately spawned one (§3, §4.1).
	threadTask *Task

	// current is the task presently executing on this carrier's OS
	// thread: either threadTask, while the run loop itself is between
	// dispatches, or whichever Task's target function is running.
	current atomic.Pointer[Task]

	// localCache is the per-carrier bounded LIFO of recycled tasks (§3:
	// "taskCache, bounded LIFO of recycled tasks (capacity =
	// configured)"). Touched only by this carrier's own run loop and
	// task goroutines that call taskExit on its behalf, so it needs no
	// lock beyond the carrier's own sequencing.
	localCache    []*Task
	localCacheCap int

	// yieldingTask holds a task that called Yield during its current
	// execution, to be re-enqueued by runEpilog once the run loop has
	// regained control: deferred so the re-enqueue can't race ahead of
	// the parking task's own goroutine reaching its blocking receive
	// (§4.1.9, §4.1.10).
	yieldingTask *Task

	// pendingTimer holds a high-precision TimerBinding registered from
	// inside a user task, to be installed against the shared timer
	// service by runEpilog instead of from the task's own goroutine
	// (§3, §4.1.10, §4.1.12). Discarded, not installed, if the owning
	// task exits or the carrier is destroyed before the epilog runs
	// (§9 Open Questions).
	pendingTimer *TimerBinding

	// schedTick counts every yieldTo dispatch; lastSchedTick is the
	// value observed at the previous Engine.Liveness sweep, so a stalled
	// carrier (schedTick == lastSchedTick across two sweeps) can be
	// detected externally.
	schedTick     atomic.Uint64
	lastSchedTick atomic.Uint64

	// submitCh queues functions from goroutines that don't currently own
	// this carrier (§4.1.2's "external submitters"), to be run by Run's
	// own goroutine instead of racing Spawn's direct field access
	// (c.current, localCache) against whichever goroutine the carrier is
	// presently handing control to.
	submitCh chan func(*Carrier)

	terminated shutdownFlag
}

// newCarrier constructs carrier id's scheduling state, wiring its own
// event pump and timer wheel per cfg.
func newCarrier(e *Engine, w *Worker, cfg *engineOptions) (*Carrier, error) {
	pump, err := NewPump()
	if err != nil {
		return nil, WrapError("carrier: init carrier event pump", err)
	}
	c := &Carrier{
		id:            w.thread.id,
		engine:        e,
		worker:        w,
		thread:        w.thread,
		registry:      e.registry,
		pump:          pump,
		timers:        NewTimerWheel(cfg.highPrecisionTimer),
		localCacheCap: cfg.taskCacheSize,
		submitCh:      make(chan func(*Carrier), 16),
	}
	if cfg.metricsEnabled {
		c.metrics = &CarrierMetrics{}
	}
	c.threadTask = &Task{ctx: newTaskContext(), isThreadTask: true}
	c.threadTask.status.Store(TaskRunnable)
	c.threadTask.carrier.Store(c)
	c.current.Store(c.threadTask)
	return c, nil
}

// ID returns the carrier's stable identifier, shared with its Thread.
func (c *Carrier) ID() int { return c.id }

// Current returns the task currently executing on this carrier: either
// a user task, or threadTask when the run loop itself holds control.
func (c *Carrier) Current() *Task { return c.current.Load() }

// ThreadTask returns this carrier's distinguished run-loop task.
func (c *Carrier) ThreadTask() *Task { return c.threadTask }

// Counter returns a point-in-time snapshot of this carrier's scheduling
// state.
func (c *Carrier) Counter() CarrierStats {
	return CarrierStats{
		ID:              c.id,
		SchedTick:       c.schedTick.Load(),
		QueueDepth:      c.worker.QueueLength(),
		LocalCacheDepth: len(c.localCache),
		Metrics:         c.metrics,
	}
}

// Submit queues fn to run on this carrier's own run-loop goroutine at its
// next opportunity, and wakes it. Use this from a goroutine that doesn't
// currently own the carrier (i.e. isn't already executing as one of its
// tasks or its Run loop); Spawn and the other Carrier methods assume
// single-threaded access and must not be called concurrently with the
// carrier's own dispatch loop from an unrelated goroutine.
func (c *Carrier) Submit(fn func(*Carrier)) {
	c.submitCh <- fn
	c.worker.Signal()
}

// drainSubmitted runs every function queued via Submit since the last
// drain. Called only from Run's own goroutine.
func (c *Carrier) drainSubmitted() {
	for {
		select {
		case fn := <-c.submitCh:
			fn(c)
		default:
			return
		}
	}
}

// HandOff detaches this carrier's worker thread from scheduling duties
// for the duration of a presumed blocking syscall (§4.1.14). Must be
// called from within a task running on this carrier.
func (c *Carrier) HandOff() {
	c.engine.scheduler.HandOffWorkerThread(c.thread)
}

// spawnOptions holds per-spawn configuration resolved from SpawnOption
// values.
type spawnOptions struct {
	name      string
	ctxLoader func() context.Context
}

// SpawnOption configures a single Spawn call.
type SpawnOption interface {
	applySpawn(*spawnOptions)
}

type spawnOptionFunc func(*spawnOptions)

func (f spawnOptionFunc) applySpawn(o *spawnOptions) { f(o) }

// WithTaskName names the spawned task, surfaced via Task.Name. The
// distinguished name used internally for drain signaling is reserved;
// user code should not spawn tasks under that name.
func WithTaskName(name string) SpawnOption {
	return spawnOptionFunc(func(o *spawnOptions) { o.name = name })
}

// WithTaskContext supplies a loader invoked once at spawn time to build
// the task's associated context.Context, retrieved later via
// Task.Context. Defaults to context.Background when omitted.
func WithTaskContext(loader func() context.Context) SpawnOption {
	return spawnOptionFunc(func(o *spawnOptions) { o.ctxLoader = loader })
}

func resolveSpawnOptions(opts []SpawnOption) spawnOptions {
	var cfg spawnOptions
	for _, o := range opts {
		if o != nil {
			o.applySpawn(&cfg)
		}
	}
	return cfg
}

// acquireTask pops a recycled task from this carrier's local cache,
// falling back to the engine's shared group cache, and finally a fresh
// allocation (§3, §4.1.2).
func (c *Carrier) acquireTask() *Task {
	if n := len(c.localCache); n > 0 {
		t := c.localCache[n-1]
		c.localCache[n-1] = nil
		c.localCache = c.localCache[:n-1]
		return t
	}
	if t := c.engine.groupTaskCache.Take(); t != nil {
		return t
	}
	return newTask()
}

// Spawn implements §4.1.2: acquire or allocate a Task, reset it to run
// target, and run it synchronously up to its first park (schedule(),
// yield(), a blocking registerEvent/timer wait, or return), at which
// point control returns here to the caller. Rejects with Rejected if the
// owning Engine has already begun shutting down, unless this is the
// distinguished SHUTDOWN spawn.
func (c *Carrier) Spawn(target func(*Task), opts ...SpawnOption) (*Task, error) {
	cfg := resolveSpawnOptions(opts)
	if c.engine.hasBeenShutdown.IsSet() && cfg.name != shutdownTaskName {
		return nil, &Rejected{Name: cfg.name}
	}

	parent := c.Current()
	task := c.acquireTask()
	task.reset(target, parent, cfg.name, c.thread, cfg.ctxLoader)
	task.carrier.Store(c)

	if cfg.name != shutdownTaskName {
		c.engine.runningTaskCount.Add(1)
	}

	logger().Debug().Str("component", "carrier").Str("event", "spawn").Str("name", cfg.name).Log("task spawned")

	c.yieldTo(task)
	c.runEpilog()

	return task, nil
}

// yieldTo implements the dispatch half of switch(from, to) (§4.1.3): it
// transfers control from whichever task/thread-task currently holds this
// carrier to task, and blocks until control is handed back.
func (c *Carrier) yieldTo(task *Task) {
	from := c.Current()
	if from == task {
		panic(&InvalidState{Message: "yieldTo: task cannot yield to itself"})
	}
	if task.status.IsZombie() {
		panic(&InvalidState{Message: "yieldTo: task already exited"})
	}
	if !task.status.TryTransition(TaskParked, TaskRunnable) {
		task.status.Store(TaskRunnable)
	}
	task.carrier.Store(c)
	c.current.Store(task)
	c.schedTick.Add(1)

	ctxSwitchPark(from, task)

	c.current.Store(from)
}

// Schedule implements §4.1.4: the currently executing task suspends
// itself, returning control either to its spawner (first-park chain,
// single-use) or to this carrier's run-loop task (every subsequent
// park). Returns any pending cross-task exception observed on resume
// (§7: ShutdownRaise), except for the SHUTDOWN task itself.
func (c *Carrier) Schedule() error {
	task := c.Current()
	if task == nil || task.IsThreadTask() {
		return &InvalidState{Message: "Schedule called outside a task"}
	}
	if !task.status.TryTransition(TaskRunnable, TaskParked) {
		return &InvalidState{Message: "Schedule called from a non-runnable task"}
	}
	task.stealLock.Store(1)

	if parent := task.parent.Load(); parent != nil {
		task.parent.Store(nil)
		ctxSwitchPark(task, parent)
	} else {
		ctxSwitchPark(task, c.threadTask)
	}

	task.status.Store(TaskRunnable)
	if resumedOn := task.carrier.Load(); resumedOn != nil {
		resumedOn.bindCurrentGoroutine()
	}
	if task.name != shutdownTaskName {
		if err := checkAndThrowException(task); err != nil {
			return err
		}
		if c.engine.hasBeenShutdown.IsSet() {
			return &ShutdownRaise{}
		}
	}
	return nil
}

// Yield implements §4.1.9: the calling task cooperatively relinquishes
// its carrier, to be re-enqueued at the tail of this carrier's runqueue
// once the run loop regains control (via runEpilog), rather than waiting
// on an external wakeup.
func (c *Carrier) Yield() error {
	task := c.Current()
	if task == nil || task.IsThreadTask() {
		return &InvalidState{Message: "Yield called outside a task"}
	}
	logger().Debug().Str("component", "carrier").Str("event", "yield").Str("name", task.name).Log("task yielded")
	c.yieldingTask = task
	return c.Schedule()
}

// runEpilog implements §4.1.10: run on the run-loop task after every
// resume into it, installing any deferred yield re-enqueue. Epilog
// latency is recorded when metrics are enabled.
func (c *Carrier) runEpilog() {
	var start time.Time
	if c.metrics != nil {
		start = time.Now()
	}

	if b := c.pendingTimer; b != nil {
		c.pendingTimer = nil
		c.timers.install(b, c.wakeupTask)
	}

	if t := c.yieldingTask; t != nil {
		c.yieldingTask = nil
		entry := newResumeEntry(t, c, false)
		c.worker.Push(entry)
	}

	if c.metrics != nil {
		c.metrics.EpilogLatency.Record(time.Since(start))
	}
}

// wakeupTask implements §4.1.5: schedule task for resumption on whichever
// carrier currently owns it, allowing a subsequent steal if ownership
// has moved again by the time the entry is dispatched.
func (c *Carrier) wakeupTask(t *Task) {
	owner := t.Carrier()
	if owner == nil {
		owner = c
	}
	t.enqueueTime = time.Now()
	owner.worker.Push(newResumeEntry(t, owner, true))
}

// rewake re-delivers entry to origin after a failed dispatch attempt
// (§4.1.6). Contention failures that exceed the configured steal-retry
// rate are delayed slightly rather than hot-looping origin.
func (c *Carrier) rewake(entry *ResumeEntry, origin *Carrier) {
	if origin == nil {
		origin = c
	}
	if entry.stealEnable && !c.engine.scheduler.allowStealRetry(origin) {
		time.AfterFunc(time.Millisecond, func() { origin.worker.Push(entry) })
		return
	}
	origin.worker.Push(entry)
}

// steal implements §4.1.7: transfer ownership of task to c. Returns
// StealFailByStatus if the engine is draining (and task isn't the
// SHUTDOWN task) or task has already exited; StealFailByContention if
// task hasn't yet reached a safely parked state for its owning carrier
// to release. ctxStealAcquire bounds the wait for the narrow window
// between a task deciding to park and its goroutine reaching the
// blocking receive that makes the handoff safe. Asserts task.parent is
// nil: a task mid first-park chain must never be stolen (§4.1.7, §3).
func (c *Carrier) steal(task *Task) (StealOutcome, error) {
	if c.engine.hasBeenShutdown.IsSet() && task.name != shutdownTaskName {
		task.stealFailureCount.Add(1)
		return StealFailByStatus, &StealFailure{Outcome: StealFailByStatus}
	}
	if task.status.IsZombie() {
		task.stealFailureCount.Add(1)
		return StealFailByStatus, &StealFailure{Outcome: StealFailByStatus}
	}
	if task.Carrier() == c {
		return StealSuccess, nil
	}
	if task.status.Load() != TaskParked {
		task.stealFailureCount.Add(1)
		logger().Warning().Str("component", "carrier").Str("event", "steal_failure").Str("outcome", StealFailByContention.String()).Log("steal contention")
		return StealFailByContention, &StealFailure{Outcome: StealFailByContention}
	}

	ctxStealAcquire(task)
	if task.parent.Load() != nil {
		panic(&InvalidState{Message: "steal: task mid first-park chain"})
	}
	task.carrier.Store(c)
	task.stealCount.Add(1)
	logger().Debug().Str("component", "carrier").Str("event", "steal").Str("name", task.name).Log("task stolen")
	return StealSuccess, nil
}

// taskExit implements §4.1.8: called from task's own dedicated goroutine
// (task.go's runLoop) once its target function returns. Retires the
// task's I/O and timer registrations, recycles it into this carrier's
// local cache (spilling to the engine's group cache once full), and
// hands control back to whichever task is waiting for this one: the
// first-park chain's inline spawner, if task exited without ever calling
// Schedule (mirroring Schedule's own parent branch), or this carrier's
// run-loop task otherwise. Either way the handoff is the tail-call
// switch variant: task's own goroutine loops back to wait for its next
// (recycled) resume, so no goroutine is leaked.
func (c *Carrier) taskExit(task *Task) {
	task.status.Store(TaskZombie)

	if task.name != shutdownTaskName {
		c.engine.runningTaskCount.Add(-1)
	}

	if task.ch != nil {
		_ = c.pump.UnregisterEvent(task)
	}
	if task.timeOut != nil {
		c.timers.cancelTimer(task.timeOut)
		if c.pendingTimer == task.timeOut {
			c.pendingTimer = nil
		}
		task.timeOut = nil
	}

	task.threadWrapper = nil
	task.target = nil

	if len(c.localCache) < c.localCacheCap {
		c.localCache = append(c.localCache, task)
	} else {
		c.engine.groupTaskCache.Give(task)
	}

	if parent := task.parent.Load(); parent != nil {
		task.parent.Store(nil)
		c.current.Store(parent)
		ctxSwitchHandoff(parent)
		return
	}

	c.current.Store(c.threadTask)
	ctxSwitchHandoff(c.threadTask)
}

// bindCurrentGoroutine associates the calling goroutine with c in the
// carrier registry: called whenever a task resumes, since a steal
// rebinds ownership without changing the task's goroutine identity
// (§4.1.7, "steal neutrality").
func (c *Carrier) bindCurrentGoroutine() {
	c.registry.Bind(c)
}

// processDueTimers sweeps the coarse timer wheel and wakes every task
// whose deadline has passed.
func (c *Carrier) processDueTimers(now time.Time) {
	for _, b := range c.timers.sweepDue(now) {
		c.wakeupTask(b.task)
	}
}

// AddTimer implements §4.1.12's routing. Low-precision mode, and
// high-precision mode called from the run-loop task, register
// immediately. High-precision mode called from a user task defers
// registration to runEpilog (c.pendingTimer) instead, since registering
// directly here could recursively park were the timer service itself
// coroutine-aware.
func (c *Carrier) AddTimer(task *Task, d time.Duration) *TimerBinding {
	b := c.timers.newBinding(task, time.Now().Add(d))
	task.timeOut = b

	if c.timers.highPrecision && task != c.threadTask {
		c.pendingTimer = b
		return b
	}

	c.timers.install(b, c.wakeupTask)
	return b
}

// CancelTimer implements §4.1.12: marks b canceled and, in low-precision
// mode, removes it from the wheel; also discards it from pendingTimer if
// the epilog hasn't installed it yet.
func (c *Carrier) CancelTimer(b *TimerBinding) {
	c.timers.cancelTimer(b)
	if c.pendingTimer == b {
		c.pendingTimer = nil
	}
}

// RegisterEvent implements §4.1.11: registers task's interest in fd
// readiness matching mask, waking it via the standard wakeupTask path
// once observed.
func (c *Carrier) RegisterEvent(task *Task, fd int, mask IOEvents) error {
	return c.pump.RegisterEvent(task, fd, mask, c.wakeupTask)
}

// UnregisterEvent clears task's I/O interest, if any.
func (c *Carrier) UnregisterEvent(task *Task) error {
	return c.pump.UnregisterEvent(task)
}

// destroyTask retires a cached task's dedicated goroutine permanently:
// marks it exited and sends on its resume channel, which its runLoop
// observes and returns from instead of starting another incarnation.
func destroyTask(t *Task) {
	t.exited.Store(true)
	t.ctx.resumeCh <- struct{}{}
}

// Destroy implements §4.1.13: idempotently retires every cached task's
// goroutine and releases this carrier's event pump. Must not be called
// while the run loop is still active; call after Run returns.
func (c *Carrier) Destroy() error {
	if !c.terminated.Set() {
		return nil
	}
	logger().Debug().Str("component", "carrier").Str("event", "destroy").Log("carrier destroyed")
	c.pendingTimer = nil
	for _, t := range c.localCache {
		destroyTask(t)
	}
	c.localCache = nil
	return c.pump.Close()
}

// Run drives this carrier's scheduling loop until ctx is canceled: it
// dispatches runqueue entries, sweeps due timers, and polls for I/O
// readiness, handing control to whichever task a ResumeEntry targets and
// reclaiming it once that task parks or exits.
func (c *Carrier) Run(ctx context.Context) {
	c.registry.Bind(c)
	defer c.registry.Unbind()
	lockWorkerOSThread(c.worker)
	c.current.Store(c.threadTask)

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		for ctx.Err() == nil {
			timeout := 50
			if d, ok := c.timers.nextDeadline(); ok {
				if ms := int(time.Until(d) / time.Millisecond); ms < timeout {
					if ms < 0 {
						ms = 0
					}
					timeout = ms
				}
			}
			if _, err := c.pump.Poll(timeout); err != nil && errors.Is(err, ErrPollerClosed) {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-pollDone
			return
		default:
		}

		c.processDueTimers(time.Now())
		c.drainSubmitted()

		if c.worker.HasBeenHandoff() {
			select {
			case <-ctx.Done():
				<-pollDone
				return
			case <-c.worker.wake:
			}
			continue
		}

		dispatchedAny := false
		for {
			entry, ok := c.worker.Pop()
			if !ok {
				break
			}
			dispatchedAny = true
			c.current.Store(c.threadTask)
			entry.dispatch(c)
		}

		if c.metrics != nil {
			c.metrics.Queue.UpdateRunQueue(c.worker.QueueLength())
			c.metrics.Queue.UpdateGroup(c.engine.groupTaskCache.Length())
		}

		if !dispatchedAny {
			select {
			case <-ctx.Done():
				<-pollDone
				return
			case <-c.worker.wake:
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
}

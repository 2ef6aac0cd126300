package carrier

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

// Thread is the identity handed to user code that asks "what thread am I
// on" (§3), and the key §6's externally-consumed Scheduler methods
// (executeWithWorkerThread, addTimer, cancelTimer, handOffWorkerThread)
// take. In this goroutine-hosted model a "thread" is a Scheduler Worker.
type Thread struct {
	id     int
	worker *Worker
}

// ID returns the thread's stable identifier, for the "ordering by thread
// id" that §6 exposes to collaborators.
func (t *Thread) ID() int { return t.id }

// Worker is one Scheduler slot: a per-carrier FIFO runqueue plus the
// handoff/signal machinery §4.1.14 and §6 describe.
type Worker struct { // betteralign:ignore
	thread  *Thread
	carrier *Carrier

	queueMu sync.Mutex
	queue   *RunQueue

	wake chan struct{}

	hasBeenHandoff atomic.Bool
	reattachFunc   func(*Worker)

	// osThreadLocked is set once this worker's run loop has called
	// runtime.LockOSThread.
	osThreadLocked atomic.Bool
}

func newWorker(id int, reattachFunc func(*Worker)) *Worker {
	w := &Worker{
		queue:        NewRunQueue(),
		wake:         make(chan struct{}, 1),
		reattachFunc: reattachFunc,
	}
	w.thread = &Thread{id: id, worker: w}
	return w
}

// Push enqueues entry onto this worker's runqueue and signals it.
func (w *Worker) Push(entry *ResumeEntry) {
	w.queueMu.Lock()
	w.queue.Push(entry)
	w.queueMu.Unlock()
	w.Signal()
}

// Pop dequeues the next entry, if any.
func (w *Worker) Pop() (*ResumeEntry, bool) {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	return w.queue.Pop()
}

// QueueLength reports the worker's current runqueue depth.
func (w *Worker) QueueLength() int {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	return w.queue.Length()
}

// Signal wakes this worker's blocking dequeue/poll wait. Non-blocking:
// the channel has capacity 1, and a pending signal is sufficient (no
// need to queue more than one wakeup).
func (w *Worker) Signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// HasBeenHandoff reports whether this worker's OS thread is currently
// detached for a presumed blocking syscall (§4.1.14).
func (w *Worker) HasBeenHandoff() bool {
	return w.hasBeenHandoff.Load()
}

// ProcessTimer sweeps the owning carrier's coarse timer wheel for due
// bindings and wakes their tasks.
func (w *Worker) ProcessTimer() {
	if w.carrier == nil {
		return
	}
	w.carrier.processDueTimers(time.Now())
}

// Reattach signals that a handed-off worker is available again, or
// should exit, per §4.1.14 ("may later be re-attached or signaled to
// exit"). It clears the handoff flag and invokes the configured
// reattach callback, if any (WithHandoffReattach).
func (w *Worker) Reattach() {
	w.hasBeenHandoff.Store(false)
	if w.reattachFunc != nil {
		w.reattachFunc(w)
	}
	w.Signal()
}

// Scheduler is the work-stealing coordinator: a fixed set of per-carrier
// Workers, plus a shared rate limiter that throttles how often a losing
// steal attempt may re-wake its origin carrier (§6, DOMAIN STACK).
type Scheduler struct {
	workers      []*Worker
	stealLimiter *catrate.Limiter
}

// NewScheduler builds a Scheduler with n workers. limiter is consulted by
// rewake to rate-limit steal-contention retries per origin carrier; pass
// nil to disable rate limiting.
func NewScheduler(n int, limiter *catrate.Limiter, reattachFunc func(*Worker)) *Scheduler {
	s := &Scheduler{
		workers:      make([]*Worker, n),
		stealLimiter: limiter,
	}
	for i := range s.workers {
		s.workers[i] = newWorker(i, reattachFunc)
	}
	return s
}

// ExecuteWithWorkerThread enqueues entry onto thread's worker (§6:
// executeWithWorkerThread(entry, thread)).
func (s *Scheduler) ExecuteWithWorkerThread(entry *ResumeEntry, thread *Thread) {
	thread.worker.Push(entry)
}

// HandOffWorkerThread detaches thread's worker from scheduling duties for
// the duration of a presumed blocking syscall (§4.1.14, §6). It only sets
// the worker's handoff flag: while the flag is set, the carrier's run loop
// dispatches nothing and waits for a Signal or Reattach. No OS thread is
// detached from the worker.
func (s *Scheduler) HandOffWorkerThread(thread *Thread) {
	thread.worker.hasBeenHandoff.Store(true)
}

// allowStealRetry reports whether origin may be re-woken by a losing
// steal attempt right now, per the configured rate limit. Always true
// when no limiter is configured.
func (s *Scheduler) allowStealRetry(origin *Carrier) bool {
	if s.stealLimiter == nil {
		return true
	}
	_, ok := s.stealLimiter.Allow(origin.id)
	return ok
}

// lockWorkerOSThread is called once from a worker's run loop to pin it to
// a dedicated OS thread.
func lockWorkerOSThread(w *Worker) {
	runtime.LockOSThread()
	w.osThreadLocked.Store(true)
}

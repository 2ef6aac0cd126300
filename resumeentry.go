package carrier

import (
	"time"
)

// ResumeEntry is a single-shot closure-with-state enqueued into a
// worker's runqueue that, when dispatched, resumes exactly one task
// (§2, §4.1.6). Because parking always goes through a ResumeEntry, each
// entry is consumed by exactly one worker: the steal-lock handshake
// between "enqueued" and "parked" prevents racing a half-switched stack.
type ResumeEntry struct {
	task *Task

	// stealEnable permits a carrier other than task.Carrier() to attempt
	// a steal before resuming. Cleared on any non-retryable failure so
	// future dispatches of the same entry don't re-attempt.
	stealEnable bool

	// origin is the carrier this entry was first enqueued on, used to
	// re-wake it when a dispatch on a different carrier fails.
	origin *Carrier
}

// newResumeEntry builds a resume entry for task, enqueued on origin.
func newResumeEntry(task *Task, origin *Carrier, stealEnable bool) *ResumeEntry {
	return &ResumeEntry{task: task, stealEnable: stealEnable, origin: origin}
}

// dispatch runs the §4.1.6 algorithm for this entry on carrier c:
//
//  1. If the task isn't already owned by c, attempt a steal.
//     - SUCCESS: proceed to resume on c. If that steal emptied the
//       origin worker's runqueue and the origin is in handoff mode,
//       signal it so it may exit.
//     - FAIL_BY_CONTENTION: keep stealEnable, re-wake on origin, return.
//     - any other failure: clear stealEnable, re-wake on origin, return.
//  2. Account enqueue latency, clear enqueueTime, yieldTo(task), run the
//     resume epilog.
func (e *ResumeEntry) dispatch(c *Carrier) {
	task := e.task

	if task.Carrier() != c {
		if !e.stealEnable {
			c.rewake(e, e.origin)
			return
		}
		outcome, err := c.steal(task)
		switch outcome {
		case StealSuccess:
			if c.metrics != nil {
				c.metrics.StealLatency.Record(time.Since(task.enqueueTime))
			}
			if origin := e.origin; origin != nil && origin != c &&
				origin.worker.HasBeenHandoff() && origin.worker.QueueLength() == 0 {
				origin.worker.Signal()
			}
		case StealFailByContention:
			c.rewake(e, e.origin)
			return
		default:
			e.stealEnable = false
			c.rewake(e, e.origin)
			_ = err
			return
		}
	}

	if !task.enqueueTime.IsZero() {
		task.enqueueTime = time.Time{}
	}

	c.yieldTo(task)
	c.runEpilog()
}

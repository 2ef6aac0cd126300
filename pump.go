package carrier

import (
	"sync"
	"time"
)

// pumpRegistration is the per-Task I/O interest record referenced by
// Task.ch (§3, §4.1.11). Clearing it in unregisterEvent prevents a late
// readiness notification from re-waking an unrelated reincarnation of a
// recycled task.
type pumpRegistration struct {
	fd   int
	task *Task
	mask IOEvents
}

// Pump adapts the platform FastPoller (epoll/kqueue/IOCP, per-OS in
// poller_linux.go/poller_darwin.go/poller_windows.go) to carrier's wakeup
// contract: readiness on a registered fd resumes a *Task instead of
// invoking an inline closure.
type Pump struct {
	poller FastPoller

	mu   sync.Mutex
	regs map[int]*pumpRegistration
}

// NewPump initializes the underlying platform poller.
func NewPump() (*Pump, error) {
	p := &Pump{regs: make(map[int]*pumpRegistration)}
	if err := p.poller.Init(); err != nil {
		return nil, err
	}
	return p, nil
}

// RegisterEvent implements registerEvent(task, channel, mask) (§4.1.11,
// §6): registers fd for mask readiness, with task as the wakeup target.
// wake is invoked with task from the poller's dispatch, outside its fd
// lock, once an event matching mask is observed.
func (p *Pump) RegisterEvent(task *Task, fd int, mask IOEvents, wake func(*Task)) error {
	reg := &pumpRegistration{fd: fd, task: task, mask: mask}
	task.ch = reg
	task.registerEventTime = time.Now()

	p.mu.Lock()
	p.regs[fd] = reg
	p.mu.Unlock()

	return p.poller.RegisterFD(fd, mask, task, func(t *Task) {
		p.mu.Lock()
		cur, ok := p.regs[fd]
		p.mu.Unlock()
		if !ok || cur != reg || cur.task != t {
			// Unregistered, or superseded by a newer registration on a
			// recycled fd; drop the stale notification.
			return
		}
		wake(t)
	})
}

// UnregisterEvent implements unregisterEvent() (§4.1.11): clears task's
// channel reference and removes the poller registration.
func (p *Pump) UnregisterEvent(task *Task) error {
	reg := task.ch
	if reg == nil {
		return nil
	}
	task.ch = nil

	p.mu.Lock()
	if p.regs[reg.fd] == reg {
		delete(p.regs, reg.fd)
	}
	p.mu.Unlock()

	return p.poller.UnregisterFD(reg.fd)
}

// Poll blocks up to timeoutMs for I/O readiness and dispatches any ready
// callbacks. Returns the number of events processed.
func (p *Pump) Poll(timeoutMs int) (int, error) {
	return p.poller.PollIO(timeoutMs)
}

// Close releases the underlying poller.
func (p *Pump) Close() error {
	return p.poller.Close()
}

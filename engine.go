package carrier

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// shutdownTaskName is the distinguished task name exempted from Rejected
// during a drain (§4.1.2, §7).
const shutdownTaskName = "SHUTDOWN"

func defaultWorkerCount() int {
	return runtime.GOMAXPROCS(0)
}

// Engine is the process-wide collaborator named (but left unspecified)
// by §1/§6: it owns the running-task counter, the cross-carrier group
// task cache, the shutdown flag, and the Scheduler every Carrier shares.
// Each Carrier owns its own Pump.
type Engine struct {
	opts *engineOptions

	registry  *CarrierRegistry
	scheduler *Scheduler

	carriers []*Carrier

	// runningTaskCount is the engine-wide running-task counter (§3, §5):
	// the number of non-ZOMBIE, non-thread tasks across all carriers,
	// excluding SHUTDOWN tasks.
	runningTaskCount atomic.Int64

	// groupTaskCache is the global spillover for a carrier's exited tasks
	// once its local cache is full (§2, §3, §6).
	groupTaskCache *TaskCache

	hasBeenShutdown shutdownFlag

	wg       sync.WaitGroup
	idSeq    atomic.Uint64
	carrierN atomic.Int64
}

// NewEngine builds an Engine and its fixed pool of carriers, wiring the
// scheduler, event pump, and timer mode per the resolved options. Call
// Start to launch each carrier's run loop.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	cfg, err := resolveEngineOptions(opts)
	if err != nil {
		return nil, WrapError("carrier: resolve engine options", err)
	}

	e := &Engine{
		opts:           cfg,
		registry:       NewCarrierRegistry(),
		groupTaskCache: NewTaskCache(),
	}
	e.scheduler = NewScheduler(cfg.workerCount, cfg.stealRetryLimit, cfg.handoffReattachFunc)

	e.carriers = make([]*Carrier, cfg.workerCount)
	for i := 0; i < cfg.workerCount; i++ {
		c, err := newCarrier(e, e.scheduler.workers[i], cfg)
		if err != nil {
			for _, prev := range e.carriers[:i] {
				_ = prev.Destroy()
			}
			return nil, err
		}
		e.scheduler.workers[i].carrier = c
		e.carriers[i] = c
	}

	return e, nil
}

// CurrentCarrier resolves the Carrier bound to the calling goroutine, or
// nil if the caller isn't running on one of this engine's carriers or
// tasks (§4.1.1, §9 Open Question: foreign-goroutine lookups return nil
// rather than fabricating a stand-in carrier).
func (e *Engine) CurrentCarrier() *Carrier {
	return e.registry.Lookup()
}

// Start launches every carrier's run loop in its own goroutine. It
// returns immediately; carriers run until ctx is canceled. Shutdown does
// not stop them.
func (e *Engine) Start(ctx context.Context) {
	for _, c := range e.carriers {
		e.wg.Add(1)
		go func(c *Carrier) {
			defer e.wg.Done()
			c.Run(ctx)
		}(c)
	}
}

// Wait blocks until every carrier's run loop has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Carriers returns the engine's fixed carrier pool, in worker-id order.
func (e *Engine) Carriers() []*Carrier {
	return append([]*Carrier(nil), e.carriers...)
}

// RunningTaskCount returns the engine-wide running-task count.
func (e *Engine) RunningTaskCount() int64 {
	return e.runningTaskCount.Load()
}

// IsShutdown reports whether Shutdown has been initiated.
func (e *Engine) IsShutdown() bool {
	return e.hasBeenShutdown.IsSet()
}

// Shutdown initiates a cooperative drain (§5): it latches
// hasBeenShutdown (rejecting further non-SHUTDOWN spawns and steals),
// spawns the distinguished SHUTDOWN task on each carrier so every
// in-flight task observes the pending exception at its next schedule()
// return, and waits for RunningTaskCount to reach zero, bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.hasBeenShutdown.Set() {
		return nil // already shutting down
	}

	logger().Info().Str("component", "engine").Log("shutdown initiated")

	for _, c := range e.carriers {
		c.Submit(func(c *Carrier) {
			if _, err := c.Spawn(func(*Task) {}, WithTaskName(shutdownTaskName)); err != nil {
				logger().Warning().Str("component", "engine").Err(err).Log("shutdown task spawn failed")
			}
		})
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for e.runningTaskCount.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("carrier: shutdown drain incomplete: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	for _, w := range e.scheduler.workers {
		w.Signal()
	}

	logger().Info().Str("component", "engine").Log("shutdown drain complete")
	return nil
}

// Close releases every carrier's event pump and retires its cached
// tasks. Call after Wait returns.
func (e *Engine) Close() error {
	var firstErr error
	for _, c := range e.carriers {
		if err := c.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Liveness sweeps every carrier's schedTick against the value observed at
// the previous call, returning those that haven't advanced: the
// external monitor implied by §3's "schedTick, lastSchedTick ... read by
// an external monitor" (SUPPLEMENTED FEATURES).
func (e *Engine) Liveness() []*Carrier {
	var stalled []*Carrier
	for _, c := range e.carriers {
		cur := c.schedTick.Load()
		last := c.lastSchedTick.Swap(cur)
		if cur == last {
			stalled = append(stalled, c)
		}
	}
	return stalled
}

func (e *Engine) nextTaskID() uint64 {
	return e.idSeq.Add(1)
}

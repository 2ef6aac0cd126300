package carrier

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// engineOptions holds configuration resolved from EngineOption values.
type engineOptions struct {
	taskCacheSize       int
	highPrecisionTimer  bool
	workerCount         int
	stealRetryLimit     *catrate.Limiter
	stealRetryRates     map[time.Duration]int
	metricsEnabled      bool
	handoffReattachFunc func(*Worker)
}

// EngineOption configures an Engine at construction.
type EngineOption interface {
	applyEngine(*engineOptions) error
}

type engineOptionImpl struct {
	applyEngineFunc func(*engineOptions) error
}

func (o *engineOptionImpl) applyEngine(opts *engineOptions) error {
	return o.applyEngineFunc(opts)
}

// WithTaskCacheSize sets the per-carrier recycle cap for exited tasks.
// Overflow beyond this cap spills into the engine's shared group cache
// (§3, §6: TASK_CACHE_SIZE). The default is 256.
func WithTaskCacheSize(size int) EngineOption {
	return &engineOptionImpl{func(opts *engineOptions) error {
		if size < 0 {
			size = 0
		}
		opts.taskCacheSize = size
		return nil
	}}
}

// WithHighPrecisionTimer selects the timer wheel mode (§6:
// HIGH_PRECISION_TIMER). false (the default) uses a coarse min-heap wheel
// serviced by each carrier's run loop; true schedules directly against a
// shared high-resolution timer service, with epilog indirection for
// registrations made from inside a task.
func WithHighPrecisionTimer(enabled bool) EngineOption {
	return &engineOptionImpl{func(opts *engineOptions) error {
		opts.highPrecisionTimer = enabled
		return nil
	}}
}

// WithWorkerCount sets the number of carriers the engine starts. The
// default is runtime.GOMAXPROCS(0).
func WithWorkerCount(n int) EngineOption {
	return &engineOptionImpl{func(opts *engineOptions) error {
		if n < 1 {
			n = 1
		}
		opts.workerCount = n
		return nil
	}}
}

// WithStealRetryRateLimit rate-limits, per origin carrier, how often a
// ResumeEntry that keeps losing the steal race (StealFailByContention) may
// re-wake that carrier to retry, instead of hot-looping it. rates follows
// catrate's convention: a map of window duration to max events permitted in
// that window, e.g. {time.Second: 50} allows up to 50 retries per second.
func WithStealRetryRateLimit(rates map[time.Duration]int) EngineOption {
	return &engineOptionImpl{func(opts *engineOptions) error {
		opts.stealRetryRates = rates
		return nil
	}}
}

// WithMetrics enables metrics collection (steal latency, epilog latency,
// runqueue and group-cache depth). The schedTick rate is not collected.
// Disabled by default to keep the hot path allocation-free.
func WithMetrics(enabled bool) EngineOption {
	return &engineOptionImpl{func(opts *engineOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithHandoffReattach registers a callback invoked when a Worker that was
// detached via HandOffWorkerThread (§4.1.14) is later re-attached or
// signaled to exit, so callers can observe handoff lifecycle without
// polling.
func WithHandoffReattach(fn func(*Worker)) EngineOption {
	return &engineOptionImpl{func(opts *engineOptions) error {
		opts.handoffReattachFunc = fn
		return nil
	}}
}

// resolveEngineOptions applies EngineOption values over the defaults.
func resolveEngineOptions(opts []EngineOption) (*engineOptions, error) {
	cfg := &engineOptions{
		taskCacheSize: 256,
		workerCount:   defaultWorkerCount(),
		stealRetryRates: map[time.Duration]int{
			time.Second: 50,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyEngine(cfg); err != nil {
			return nil, err
		}
	}
	cfg.stealRetryLimit = catrate.NewLimiter(cfg.stealRetryRates)
	return cfg, nil
}

package corort

import (
	"log/slog"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// schedulerOptions holds resolved Scheduler construction configuration.
type schedulerOptions struct {
	logger          *logiface.Logger[*slogEvent]
	clock           *Clock
	idleSleep       time.Duration
	workerPool      WorkerPoolBackend
	workerPoolSize  int
	overloadLimiter *catrate.Limiter
}

// SchedulerOption configures a Scheduler at construction time.
type SchedulerOption interface {
	applyScheduler(*schedulerOptions)
}

type schedulerOptionFunc struct {
	fn func(*schedulerOptions)
}

func (o *schedulerOptionFunc) applyScheduler(cfg *schedulerOptions) { o.fn(cfg) }

// WithLogger sets the structured logger the scheduler and its
// subsystems report through. Default is [NopLogger].
func WithLogger(handler slog.Handler) SchedulerOption {
	return &schedulerOptionFunc{func(cfg *schedulerOptions) {
		cfg.logger = NewLogger(handler)
	}}
}

// WithClock overrides the scheduler's time source. Default is a fresh
// [NewClock].
func WithClock(clock *Clock) SchedulerOption {
	return &schedulerOptionFunc{func(cfg *schedulerOptions) {
		cfg.clock = clock
	}}
}

// WithIdleSleep sets how long the scheduler's tick sleeps when the ready
// queue, worker pool, and poller all report no progress. Default 500us.
func WithIdleSleep(d time.Duration) SchedulerOption {
	return &schedulerOptionFunc{func(cfg *schedulerOptions) {
		cfg.idleSleep = d
	}}
}

// WithWorkerPool installs a custom worker-pool backend implementing the
// submit/poll/available contract of spec §4.5. Default is an in-process
// backend batching through go-microbatch.
func WithWorkerPool(backend WorkerPoolBackend) SchedulerOption {
	return &schedulerOptionFunc{func(cfg *schedulerOptions) {
		cfg.workerPool = backend
	}}
}

// WithWorkerPoolSize sets the concurrency of the default in-process
// worker-pool backend. Ignored if [WithWorkerPool] is also given. Default
// 4.
func WithWorkerPoolSize(n int) SchedulerOption {
	return &schedulerOptionFunc{func(cfg *schedulerOptions) {
		cfg.workerPoolSize = n
	}}
}

// WithOverloadLimiter installs a rate limiter used to throttle the
// scheduler's repeated "scheduler idle, sleeping" trace log line. Default
// constructs one allowing at most one such line per category per second.
func WithOverloadLimiter(limiter *catrate.Limiter) SchedulerOption {
	return &schedulerOptionFunc{func(cfg *schedulerOptions) {
		cfg.overloadLimiter = limiter
	}}
}

func resolveSchedulerOptions(opts []SchedulerOption) *schedulerOptions {
	cfg := &schedulerOptions{
		idleSleep:      500 * time.Microsecond,
		workerPoolSize: 4,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyScheduler(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = NopLogger()
	}
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}
	if cfg.overloadLimiter == nil {
		cfg.overloadLimiter = catrate.NewLimiter(map[time.Duration]int{
			time.Second: 1,
		})
	}
	return cfg
}

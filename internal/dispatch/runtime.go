package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/yonglehou/DReAM/internal/taskenv"
)

// Strategy selects the primary pool implementation. The choice is made once
// at process start; both strategies satisfy the same Queue contract.
type Strategy string

const (
	StrategyElastic Strategy = "elastic"
	StrategyFixed   Strategy = "fixed"
	// StrategyInPlace runs scheduled work synchronously on the caller. It
	// exists because some deployments depend on in-place activation; the
	// flag makes the behavior an explicit choice instead of a surprise.
	StrategyInPlace Strategy = "inplace"
)

// Pool is the introspectable dispatch queue both pool variants implement.
type Pool interface {
	taskenv.Queue
	Live() int
	Idle() int
	QueueLen() int
	Min() int
	Max() int
	Shutdown(ctx context.Context) error
}

// Config is the process-wide scheduling configuration, read once at start.
type Config struct {
	Strategy          Strategy
	MinWorkers        int
	MaxWorkers        int
	BackgroundWorkers int
	IdleTimeout       time.Duration
	// MaxStackBytes, when positive, caps the per-goroutine stack.
	MaxStackBytes int
}

// Limits is the configured capacity envelope, for operational endpoints.
type Limits struct {
	Strategy          Strategy `json:"strategy"`
	MinWorkers        int      `json:"min_workers"`
	MaxWorkers        int      `json:"max_workers"`
	BackgroundWorkers int      `json:"background_workers"`
}

// Capacity is a point-in-time snapshot of live scheduling capacity.
type Capacity struct {
	LiveWorkers       int `json:"live_workers"`
	IdleWorkers       int `json:"idle_workers"`
	QueueDepth        int `json:"queue_depth"`
	BackgroundWorkers int `json:"background_workers"`
	BackgroundQueue   int `json:"background_queue"`
}

// inPlacePool adapts the immediate queue to the Pool surface so the runtime
// introspection works uniformly across strategies.
type inPlacePool struct{ taskenv.Queue }

func (inPlacePool) Live() int                        { return 0 }
func (inPlacePool) Idle() int                        { return 0 }
func (inPlacePool) QueueLen() int                    { return 0 }
func (inPlacePool) Min() int                         { return 0 }
func (inPlacePool) Max() int                         { return 0 }
func (inPlacePool) Shutdown(_ context.Context) error { return nil }

// Runtime owns the process-wide pools. It replaces what used to be global
// static state with one object built at startup and injected into every
// dependent, with an explicit shutdown path that drains and retires all
// workers.
type Runtime struct {
	cfg        Config
	primary    Pool
	background Pool
	logger     *slog.Logger
}

// NewRuntime builds the pools for cfg. The background pool is always fixed;
// it serves long-running housekeeping senders that must not compete with
// request work for elastic capacity.
func NewRuntime(cfg Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxStackBytes > 0 {
		debug.SetMaxStack(cfg.MaxStackBytes)
	}

	var primary Pool
	var err error
	switch cfg.Strategy {
	case StrategyElastic, "":
		primary, err = NewElasticPool(ElasticConfig{
			Name:        "primary",
			Min:         cfg.MinWorkers,
			Max:         cfg.MaxWorkers,
			IdleTimeout: cfg.IdleTimeout,
		}, logger)
	case StrategyFixed:
		primary, err = NewFixedPool("primary", cfg.MaxWorkers, logger)
	case StrategyInPlace:
		primary = inPlacePool{taskenv.Immediate()}
	default:
		return nil, fmt.Errorf("unknown pool strategy %q", cfg.Strategy)
	}
	if err != nil {
		return nil, err
	}

	bg := cfg.BackgroundWorkers
	if bg < 1 {
		bg = 1
	}
	background, err := NewFixedPool("background", bg, logger)
	if err != nil {
		return nil, err
	}

	return &Runtime{cfg: cfg, primary: primary, background: background, logger: logger}, nil
}

// Primary returns the queue request-processing work is dispatched to.
func (rt *Runtime) Primary() Pool { return rt.primary }

// Background returns the fixed pool for housekeeping work.
func (rt *Runtime) Background() Pool { return rt.background }

// NewEnv builds an execution environment pinned to the primary queue.
func (rt *Runtime) NewEnv() *taskenv.Env { return taskenv.New(rt.primary) }

// ConfiguredLimits returns the capacity envelope read at startup.
func (rt *Runtime) ConfiguredLimits() Limits {
	return Limits{
		Strategy:          rt.cfg.Strategy,
		MinWorkers:        rt.primary.Min(),
		MaxWorkers:        rt.primary.Max(),
		BackgroundWorkers: rt.background.Max(),
	}
}

// AvailableCapacity returns a live snapshot of worker and queue counts.
func (rt *Runtime) AvailableCapacity() Capacity {
	return Capacity{
		LiveWorkers:       rt.primary.Live(),
		IdleWorkers:       rt.primary.Idle(),
		QueueDepth:        rt.primary.QueueLen(),
		BackgroundWorkers: rt.background.Live(),
		BackgroundQueue:   rt.background.QueueLen(),
	}
}

// Shutdown drains both pools. Primary first so in-flight request work may
// still hand off to the background pool on its way out.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if err := rt.primary.Shutdown(ctx); err != nil {
		return err
	}
	return rt.background.Shutdown(ctx)
}

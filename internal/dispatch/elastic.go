package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/yonglehou/DReAM/internal/taskenv"
)

// DefaultIdleTimeout is the grace period an idle worker above the minimum
// survives before being retired.
const DefaultIdleTimeout = 30 * time.Second

// item is one queued unit of work plus the environment it runs under.
type item struct {
	env  *taskenv.Env
	work func(ctx context.Context)
}

// ElasticConfig configures an elastic pool.
type ElasticConfig struct {
	// Name labels the pool in logs and metrics.
	Name string
	// Min and Max bound the live worker count. Min workers start
	// immediately and are never retired.
	Min, Max int
	// IdleTimeout is how long a worker above Min may sit idle before
	// retiring. Zero selects DefaultIdleTimeout.
	IdleTimeout time.Duration
}

// ElasticPool is a bounded-but-growable worker pool. Work is handed to an
// idle worker when one exists, otherwise a new worker is spun up while the
// live count is below the maximum, otherwise it queues FIFO until a worker
// frees up. Work is never silently dropped while the pool is open. A single
// coarse mutex guards the bookkeeping and is held only for O(1) updates.
type ElasticPool struct {
	cfg    ElasticConfig
	logger *slog.Logger

	mu       sync.Mutex
	workers  map[int]*Worker
	nextID   int
	idle     int
	blocked  int
	pending  []item
	closed   bool
	draining sync.WaitGroup

	signal chan struct{}
	stop   chan struct{}
}

// NewElasticPool creates and starts an elastic pool with Min workers live.
func NewElasticPool(cfg ElasticConfig, logger *slog.Logger) (*ElasticPool, error) {
	if cfg.Min < 0 || cfg.Max < 1 || cfg.Min > cfg.Max {
		return nil, fmt.Errorf("elastic pool %q: invalid bounds min=%d max=%d", cfg.Name, cfg.Min, cfg.Max)
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &ElasticPool{
		cfg:     cfg,
		logger:  logger.With("pool", cfg.Name),
		workers: make(map[int]*Worker),
		signal:  make(chan struct{}, cfg.Max),
		stop:    make(chan struct{}),
	}
	p.mu.Lock()
	for i := 0; i < cfg.Min; i++ {
		p.spawnLocked()
	}
	p.mu.Unlock()
	return p, nil
}

// Schedule enqueues work and reports acceptance. If the pool has been shut
// down the work is rejected and logged, never run.
func (p *ElasticPool) Schedule(env *taskenv.Env, work func(ctx context.Context)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("work rejected, pool is shut down")
		poolRejected.WithLabelValues(p.cfg.Name).Inc()
		return false
	}
	p.pending = append(p.pending, item{env: env, work: work})
	poolQueueDepth.WithLabelValues(p.cfg.Name).Set(float64(len(p.pending)))
	// Grow when queued work outnumbers idle workers. Comparing against the
	// idle count rather than zero closes the window where a worker consumed
	// its wakeup but has not yet flipped to busy.
	if len(p.pending) > p.idle && p.effectiveLiveLocked() < p.cfg.Max {
		p.spawnLocked()
	}
	p.mu.Unlock()

	// Wake one idle worker. The channel is a best-effort signal: a dropped
	// send means enough wakeups are already in flight, and workers re-check
	// the queue after every task before parking.
	select {
	case p.signal <- struct{}{}:
	default:
	}
	return true
}

// effectiveLiveLocked is the live count minus workers parked in a long
// blocking wait. Blocked workers do not count against the growth cap so the
// pool can compensate for them.
func (p *ElasticPool) effectiveLiveLocked() int {
	return len(p.workers) - p.blocked
}

func (p *ElasticPool) spawnLocked() {
	p.nextID++
	w := &Worker{id: p.nextID, pool: p}
	p.workers[w.id] = w
	p.draining.Add(1)
	poolWorkersLive.WithLabelValues(p.cfg.Name).Set(float64(len(p.workers)))
	go p.workerLoop(w)
}

// workerLoop pulls queued work until the pool stops or the worker retires.
// Registry removal is deferred so the entry disappears exactly when the
// goroutine dies, whatever the exit path.
func (p *ElasticPool) workerLoop(w *Worker) {
	defer p.draining.Done()
	defer p.remove(w)

	idleTimer := time.NewTimer(p.cfg.IdleTimeout)
	defer idleTimer.Stop()

	for {
		for {
			it, ok := p.take()
			if !ok {
				break
			}
			p.run(w, it)
		}

		p.setIdle(w, true)
		if !idleTimer.Stop() {
			select {
			case <-idleTimer.C:
			default:
			}
		}
		idleTimer.Reset(p.cfg.IdleTimeout)

		select {
		case <-p.signal:
			p.setIdle(w, false)
		case <-idleTimer.C:
			if p.retire(w) {
				return
			}
			p.setIdle(w, false)
		case <-p.stop:
			// Drain whatever queued before shutdown, then exit.
			p.setIdle(w, false)
			for {
				it, ok := p.take()
				if !ok {
					return
				}
				p.run(w, it)
			}
		}
	}
}

func (p *ElasticPool) take() (item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return item{}, false
	}
	it := p.pending[0]
	p.pending = p.pending[1:]
	poolQueueDepth.WithLabelValues(p.cfg.Name).Set(float64(len(p.pending)))
	return it, true
}

// run executes one unit of work with panic containment: a panicking unit is
// logged and the worker returns to the pool. Result settlement for panics
// happens in the typed wrapper (see Into); this recovery is the backstop
// that keeps the worker alive.
func (p *ElasticPool) run(w *Worker, it item) {
	start := time.Now()
	defer func() {
		poolTaskDuration.WithLabelValues(p.cfg.Name).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			poolPanics.WithLabelValues(p.cfg.Name).Inc()
			p.logger.Error("work panicked", "worker_id", w.id, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	ctx := withWorker(context.Background(), w)
	if it.env != nil {
		ctx = taskenv.With(ctx, it.env)
	}
	it.work(ctx)
	poolTasksDone.WithLabelValues(p.cfg.Name).Inc()
}

func (p *ElasticPool) setIdle(w *Worker, idle bool) {
	p.mu.Lock()
	if w.idle != idle {
		w.idle = idle
		if idle {
			p.idle++
		} else {
			p.idle--
		}
		poolWorkersIdle.WithLabelValues(p.cfg.Name).Set(float64(p.idle))
	}
	p.mu.Unlock()
}

// retire removes an idle worker above the minimum. Returns false when the
// worker must stay because the pool is at its floor or work arrived.
func (p *ElasticPool) retire(w *Worker) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) > 0 || len(p.workers) <= p.cfg.Min {
		return false
	}
	if w.idle {
		w.idle = false
		p.idle--
		poolWorkersIdle.WithLabelValues(p.cfg.Name).Set(float64(p.idle))
	}
	return true
}

func (p *ElasticPool) remove(w *Worker) {
	p.mu.Lock()
	if w.idle {
		w.idle = false
		p.idle--
		poolWorkersIdle.WithLabelValues(p.cfg.Name).Set(float64(p.idle))
	}
	if w.blocked {
		w.blocked = false
		p.blocked--
	}
	delete(p.workers, w.id)
	poolWorkersLive.WithLabelValues(p.cfg.Name).Set(float64(len(p.workers)))
	// A Schedule landing between retire's unlock and this delete counted the
	// exiting worker as live and may have skipped its spawn. Re-check now
	// that the worker is off the books so that work is not stranded.
	if !p.closed && len(p.pending) > 0 && p.effectiveLiveLocked() < p.cfg.Max {
		p.spawnLocked()
	}
	p.mu.Unlock()
}

// evict implements the eviction hook: the worker is discounted from the
// effective live count and, if queued work would otherwise starve behind
// its wait, a replacement is spun up.
func (p *ElasticPool) evict(w *Worker) (restore func()) {
	p.mu.Lock()
	if w.blocked || p.closed {
		p.mu.Unlock()
		return func() {}
	}
	w.blocked = true
	p.blocked++
	poolEvictions.WithLabelValues(p.cfg.Name).Inc()
	if len(p.pending) > p.idle && p.effectiveLiveLocked() < p.cfg.Max {
		p.spawnLocked()
	}
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if w.blocked {
				w.blocked = false
				p.blocked--
			}
			p.mu.Unlock()
		})
	}
}

// Shutdown closes the pool to new work, lets workers drain the queue, and
// waits for every worker to exit or ctx to run out.
func (p *ElasticPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	close(p.stop)

	done := make(chan struct{})
	go func() {
		p.draining.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool %q shutdown: %w", p.cfg.Name, ctx.Err())
	}
}

// Live returns the current live worker count.
func (p *ElasticPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Idle returns the current idle worker count.
func (p *ElasticPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle
}

// QueueLen returns the number of queued, not yet started units of work.
func (p *ElasticPool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Min returns the configured worker floor.
func (p *ElasticPool) Min() int { return p.cfg.Min }

// Max returns the configured worker ceiling.
func (p *ElasticPool) Max() int { return p.cfg.Max }

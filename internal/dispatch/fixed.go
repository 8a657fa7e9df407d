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

// FixedPool is the fallback dispatch queue for environments without elastic
// management: a capacity-configured, non-growing worker set fed from an
// unbounded FIFO queue. It satisfies the same Queue contract as ElasticPool
// so callers never branch on which strategy is active. The eviction hook is
// a no-op here; a fixed pool cannot compensate for a blocked worker.
type FixedPool struct {
	name   string
	size   int
	logger *slog.Logger

	mu      sync.Mutex
	pending []item
	closed  bool

	signal chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewFixedPool creates and starts a pool with exactly size workers.
func NewFixedPool(name string, size int, logger *slog.Logger) (*FixedPool, error) {
	if size < 1 {
		return nil, fmt.Errorf("fixed pool %q: invalid size %d", name, size)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &FixedPool{
		name:   name,
		size:   size,
		logger: logger.With("pool", name),
		signal: make(chan struct{}, size),
		stop:   make(chan struct{}),
	}
	poolWorkersLive.WithLabelValues(name).Set(float64(size))
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		w := &Worker{id: i + 1}
		go p.workerLoop(w)
	}
	return p, nil
}

// Schedule enqueues work for the next free worker and reports acceptance.
// Rejected with a log line after shutdown, never silently dropped while open.
func (p *FixedPool) Schedule(env *taskenv.Env, work func(ctx context.Context)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("work rejected, pool is shut down")
		poolRejected.WithLabelValues(p.name).Inc()
		return false
	}
	p.pending = append(p.pending, item{env: env, work: work})
	poolQueueDepth.WithLabelValues(p.name).Set(float64(len(p.pending)))
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
	return true
}

func (p *FixedPool) workerLoop(w *Worker) {
	defer p.wg.Done()
	for {
		for {
			it, ok := p.take()
			if !ok {
				break
			}
			p.run(w, it)
		}
		select {
		case <-p.signal:
		case <-p.stop:
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

func (p *FixedPool) take() (item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return item{}, false
	}
	it := p.pending[0]
	p.pending = p.pending[1:]
	poolQueueDepth.WithLabelValues(p.name).Set(float64(len(p.pending)))
	return it, true
}

func (p *FixedPool) run(w *Worker, it item) {
	start := time.Now()
	defer func() {
		poolTaskDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			poolPanics.WithLabelValues(p.name).Inc()
			p.logger.Error("work panicked", "worker_id", w.id, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	ctx := withWorker(context.Background(), w)
	if it.env != nil {
		ctx = taskenv.With(ctx, it.env)
	}
	it.work(ctx)
	poolTasksDone.WithLabelValues(p.name).Inc()
}

// Shutdown closes the pool, drains the queue, and waits for the workers.
func (p *FixedPool) Shutdown(ctx context.Context) error {
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
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		poolWorkersLive.WithLabelValues(p.name).Set(0)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool %q shutdown: %w", p.name, ctx.Err())
	}
}

// Live returns the fixed worker count while the pool is open.
func (p *FixedPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0
	}
	return p.size
}

// Idle is approximated as size minus queued work; the fixed pool does not
// track per-worker state.
func (p *FixedPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0
	}
	if n := p.size - len(p.pending); n > 0 {
		return n
	}
	return 0
}

// QueueLen returns the number of queued units of work.
func (p *FixedPool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Min returns the pool size; a fixed pool never shrinks.
func (p *FixedPool) Min() int { return p.size }

// Max returns the pool size; a fixed pool never grows.
func (p *FixedPool) Max() int { return p.size }

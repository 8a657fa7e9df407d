package dispatch

import (
	"context"
	"sync/atomic"
)

// Worker is one entry in a pool's live-worker registry. The entry exists
// exactly while the underlying goroutine is alive; removal happens in the
// goroutine's deferred cleanup even if work panics.
type Worker struct {
	id      int
	pool    evictor
	info    atomic.Value
	blocked bool
	idle    bool
}

// evictor is the slice of pool behavior a Worker needs for the eviction
// hook. The fixed pool implements it as a no-op.
type evictor interface {
	evict(w *Worker) (restore func())
}

// ID returns the worker's registry identifier, unique within its pool.
func (w *Worker) ID() int { return w.id }

// SetInfo stores an opaque per-worker value, readable by any work later
// executing on this worker.
func (w *Worker) SetInfo(v any) { w.info.Store(v) }

// Info returns the value stored by SetInfo, nil if none.
func (w *Worker) Info() any { return w.info.Load() }

type workerKey struct{}

func withWorker(ctx context.Context, w *Worker) context.Context {
	return context.WithValue(ctx, workerKey{}, w)
}

// FromContext returns the Worker executing the current unit of work, if the
// work was dispatched by a pool in this package.
func FromContext(ctx context.Context) (*Worker, bool) {
	w, ok := ctx.Value(workerKey{}).(*Worker)
	return w, ok
}

// Evict signals the current worker's pool that this worker is about to
// perform a long blocking wait. The pool treats the worker as temporarily
// unavailable and, if pending work exists and capacity allows, spins up a
// replacement so queued work is not starved behind the wait. The returned
// func restores the worker's availability and must be called when the wait
// finishes; deferring it at the call site is the usual pattern.
//
// Outside pool-dispatched work, or on a pool without elastic management,
// Evict is a no-op.
func Evict(ctx context.Context) (restore func()) {
	w, ok := FromContext(ctx)
	if !ok || w.pool == nil {
		return func() {}
	}
	return w.pool.evict(w)
}

package taskenv

import (
	"context"
	"maps"
)

// Queue accepts a unit of work bound to an execution environment and
// schedules it. Schedule reports whether the work was accepted; a queue
// that has shut down returns false and never runs the work, so callers can
// settle whatever outcome depends on it. Implementations live in the
// dispatch package; the interface is declared here, on the consumer side,
// so an Env can reference its target queue without a package cycle.
type Queue interface {
	Schedule(env *Env, work func(ctx context.Context)) bool
}

// immediateQueue runs work in place on the calling goroutine. It is the
// default binding for an Env created without an explicit queue, mirroring
// the in-place activation default of the runtime.
type immediateQueue struct{}

func (immediateQueue) Schedule(env *Env, work func(ctx context.Context)) bool {
	work(With(context.Background(), env))
	return true
}

// Immediate returns a queue that executes work synchronously on the caller.
func Immediate() Queue { return immediateQueue{} }

// Env is the execution environment carried by every scheduled unit of work:
// the queue follow-on work should target plus per-flow attached state used
// for diagnostics. An Env is created once per logical flow, threaded through
// every scheduling call derived from that flow, and discarded when the flow
// completes. Attached state is copied on Clone, never shared.
type Env struct {
	queue  Queue
	state  map[string]any
	cloned bool
}

// New builds an Env pinned to the given queue. A nil queue pins to the
// immediate queue.
func New(q Queue) *Env {
	if q == nil {
		q = immediateQueue{}
	}
	return &Env{queue: q, state: make(map[string]any)}
}

// Clone snapshots the attached state into a new Env still bound to the same
// queue. Mutations on the clone are invisible to the original.
func (e *Env) Clone() *Env {
	c := &Env{queue: e.queue, state: make(map[string]any, len(e.state)), cloned: true}
	maps.Copy(c.state, e.state)
	return c
}

// Pin returns a copy of the Env bound to a different queue, keeping the
// attached state by reference. Used when a flow must continue on a specific
// queue regardless of where it currently runs.
func (e *Env) Pin(q Queue) *Env {
	if q == nil {
		q = immediateQueue{}
	}
	return &Env{queue: q, state: e.state, cloned: e.cloned}
}

// Queue returns the Env's target queue.
func (e *Env) Queue() Queue { return e.queue }

// Cloned reports whether this Env was produced by Clone rather than built
// fresh.
func (e *Env) Cloned() bool { return e.cloned }

// Value returns the attached state for key, nil if absent.
func (e *Env) Value(key string) any { return e.state[key] }

// SetValue attaches per-flow state under key. Not safe for concurrent use;
// an Env belongs to one flow and flow steps never overlap.
func (e *Env) SetValue(key string, v any) { e.state[key] = v }

type envKey struct{}

// With installs env as the ambient environment on ctx for the duration of a
// unit of work. The previous ambient environment is whatever the parent ctx
// carried, so unwinding the context restores it.
func With(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// From returns the ambient Env carried by ctx, or a fresh immediate-queue
// Env if none was established. Explicit Env passing is preferred; From is
// the fallback for code entered from outside the scheduling machinery.
func From(ctx context.Context) *Env {
	if e, ok := ctx.Value(envKey{}).(*Env); ok {
		return e
	}
	return New(nil)
}

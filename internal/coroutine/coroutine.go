// Package coroutine drives suspend-resume flows: function bodies that look
// sequential but yield at asynchronous boundaries and resume later, possibly
// on a different worker. A flow runs on its own carrier goroutine; each step
// between suspension points is executed under a pool worker via a
// synchronous channel handoff, so a suspended flow consumes no worker.
package coroutine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yonglehou/DReAM/internal/result"
	"github.com/yonglehou/DReAM/internal/taskenv"
)

// ErrCanceled reports that a flow could not run or resume because its queue
// shut down. A pending Await inside the flow returns this error so the flow
// unwinds and its handle settles instead of staying pending forever.
var ErrCanceled = errors.New("flow canceled: queue is shut down")

// C is the per-flow control block handed to a flow body. It carries the
// flow's execution environment and the handoff channels between the carrier
// goroutine and the driving worker. A C belongs to exactly one flow; flow
// steps never overlap, so no locking is needed beyond the cancel latch.
type C struct {
	env    *taskenv.Env
	ctx    context.Context
	resume chan struct{}
	yield  chan yieldEvent
	quit   chan struct{}
	stop   sync.Once
}

// cancel tears the flow down when its queue will never run another step.
func (c *C) cancel() {
	c.stop.Do(func() { close(c.quit) })
}

type yieldEvent struct {
	waiter result.Waiter
	done   bool
}

// Env returns the flow's execution environment.
func (c *C) Env() *taskenv.Env { return c.env }

// Context returns the context of the step currently executing. It changes
// across suspension points because each resumption may run on a different
// worker; do not retain it past an Await.
func (c *C) Context() context.Context { return c.ctx }

// Invoke starts flow under env and settles res with its outcome. The first
// step is dispatched through env's queue and Invoke returns immediately;
// with an in-place queue the flow runs to its first suspension point before
// Invoke returns. Steps of one flow execute strictly one at a time in
// program order; independent flows run fully concurrently.
func Invoke[T any](env *taskenv.Env, flow func(c *C) (T, error), res *result.Result[T]) *result.Result[T] {
	if env == nil {
		env = taskenv.New(nil)
	}
	c := &C{
		env:    env,
		resume: make(chan struct{}),
		yield:  make(chan yieldEvent),
		quit:   make(chan struct{}),
	}

	go func() {
		select {
		case <-c.resume:
		case <-c.quit:
			return
		}
		var v T
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("flow panicked: %v", r)
				}
			}()
			v, err = flow(c)
		}()
		if err != nil {
			_ = res.Fail(err)
		} else {
			_ = res.Resolve(v)
		}
		// After cancellation no step is parked on the yield channel.
		select {
		case c.yield <- yieldEvent{done: true}:
		case <-c.quit:
		}
	}()

	if !env.Queue().Schedule(env, c.step) {
		c.cancel()
		_ = res.Fail(ErrCanceled)
	}
	return res
}

// step runs one segment of the flow on the current worker: it wakes the
// carrier goroutine, blocks until the flow suspends or finishes, and in the
// suspend case registers the next step as a continuation on the awaited
// handle, dispatched through the flow's queue when the handle settles.
func (c *C) step(ctx context.Context) {
	c.ctx = ctx
	c.resume <- struct{}{}
	ev := <-c.yield
	if ev.done {
		return
	}
	ev.waiter.Subscribe(func() {
		if !c.env.Queue().Schedule(c.env, c.step) {
			c.cancel()
		}
	})
}

// Await suspends the flow until r settles, then returns its outcome. If r
// is already terminal the flow continues inline without suspending. When
// the flow's queue shuts down while suspended, Await returns ErrCanceled so
// the flow body can unwind. Must be called from inside the flow body owning
// c.
func Await[V any](c *C, r *result.Result[V]) (V, error) {
	if r.State() != result.Pending {
		return r.Wait(0)
	}
	c.yield <- yieldEvent{waiter: r}
	select {
	case <-c.resume:
	case <-c.quit:
		var zero V
		return zero, ErrCanceled
	}
	return r.Wait(0)
}

// AwaitJoin suspends until every handle settles, failing with the first
// failure among them.
func AwaitJoin(c *C, handles ...result.Waiter) error {
	_, err := Await(c, result.Join(handles...))
	return err
}

// Sleep suspends the flow for d without holding a worker.
func Sleep(c *C, d time.Duration) {
	r := result.New[struct{}]()
	time.AfterFunc(d, func() { _ = r.Resolve(struct{}{}) })
	_, _ = Await(c, r)
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yonglehou/DReAM/internal/result"
	"github.com/yonglehou/DReAM/internal/taskenv"
)

// ErrRejected reports that work was handed to a queue that has already shut
// down. The work never ran; the handle carrying this error settled without
// an outcome from fn.
var ErrRejected = errors.New("work rejected: queue is shut down")

// Into schedules fn on q under env and settles res with fn's outcome: the
// return value on success, the returned error as a failure, and a recovered
// panic as a failure. If q rejects the work, res fails with ErrRejected so
// no waiter is left on a handle nothing will settle. It returns the same
// res for chaining. The handle may carry its own deadline; if the deadline
// fires first, the late settlement here is discarded by the handle's
// single-assignment rule.
func Into[T any](q taskenv.Queue, env *taskenv.Env, fn func(ctx context.Context) (T, error), res *result.Result[T]) *result.Result[T] {
	accepted := q.Schedule(env, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				_ = res.Fail(fmt.Errorf("scheduled work panicked: %v", r))
			}
		}()
		v, err := fn(ctx)
		if err != nil {
			_ = res.Fail(err)
			return
		}
		_ = res.Resolve(v)
	})
	if !accepted {
		_ = res.Fail(ErrRejected)
	}
	return res
}

// Go schedules fn on q under env and returns a fresh handle for its outcome.
func Go[T any](q taskenv.Queue, env *taskenv.Env, fn func(ctx context.Context) (T, error)) *result.Result[T] {
	return Into(q, env, fn, result.New[T]())
}

// WaitEvicted blocks on a handle from inside pool-dispatched work. It calls
// the eviction hook first so the pool can compensate for the blocked worker,
// then restores the worker's availability once the wait returns. This is the
// required form of a blocking wait on a worker; a bare Wait can deadlock a
// pool whose workers all block on each other.
func WaitEvicted[T any](ctx context.Context, r *result.Result[T], timeout time.Duration) (T, error) {
	restore := Evict(ctx)
	defer restore()
	return r.Wait(timeout)
}

package result

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State describes where a Result is in its lifecycle.
type State int

const (
	// Pending means no terminal outcome has been set yet.
	Pending State = iota
	// Succeeded means Resolve delivered a value.
	Succeeded
	// Failed means Fail delivered an error.
	Failed
	// TimedOut means the deadline fired before any other resolution.
	TimedOut
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrAlreadyResolved is returned when Resolve or Fail is called on a Result
// that already reached a terminal state. This is a programming error on the
// caller's side; the original outcome is never overwritten.
var ErrAlreadyResolved = errors.New("result already resolved")

// ErrTimedOut marks a Result whose deadline fired before resolution. It is a
// distinct outcome from a propagated failure so callers can tell "it failed"
// apart from "it never finished".
var ErrTimedOut = errors.New("result timed out")

// ErrWaitTimeout is returned by Wait when the wait itself gives up. The
// Result stays pending; Wait is repeatable.
var ErrWaitTimeout = errors.New("wait timed out")

// Waiter is the read-only view of a Result used for composition across
// different value types. Join and the continuation engine operate on
// Waiters.
type Waiter interface {
	Done() <-chan struct{}
	Err() error
	Subscribe(fn func())
}

// Result is a single-assignment synchronization handle for one unit of
// asynchronous work. It transitions from Pending to exactly one terminal
// state and is immutable afterward. The zero value is not usable; construct
// with New or NewWithTimeout.
type Result[T any] struct {
	mu        sync.Mutex
	state     State
	value     T
	err       error
	done      chan struct{}
	callbacks []func(v T, err error)
	timer     *time.Timer
}

// New creates a pending Result with no deadline.
func New[T any]() *Result[T] {
	return &Result[T]{done: make(chan struct{})}
}

// NewWithTimeout creates a pending Result that force-resolves to TimedOut if
// nothing else resolves it within d. The timer is cancelled on normal
// resolution so a late fire never races a settled handle.
func NewWithTimeout[T any](d time.Duration) *Result[T] {
	r := New[T]()
	r.timer = time.AfterFunc(d, r.expire)
	return r
}

// Resolve settles the Result with a value. Returns ErrAlreadyResolved if the
// Result is already terminal.
func (r *Result[T]) Resolve(v T) error {
	return r.settle(Succeeded, v, nil)
}

// Fail settles the Result with an error. Returns ErrAlreadyResolved if the
// Result is already terminal.
func (r *Result[T]) Fail(err error) error {
	if err == nil {
		err = errors.New("result failed with nil error")
	}
	var zero T
	return r.settle(Failed, zero, err)
}

// expire is the deadline timer's path into settle. A handle that resolved
// normally already stopped the timer, but the race between Stop and an
// in-flight fire is absorbed here: settle refuses terminal states.
func (r *Result[T]) expire() {
	var zero T
	_ = r.settle(TimedOut, zero, ErrTimedOut)
}

func (r *Result[T]) settle(s State, v T, err error) error {
	r.mu.Lock()
	if r.state != Pending {
		r.mu.Unlock()
		return ErrAlreadyResolved
	}
	r.state = s
	r.value = v
	r.err = err
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	cbs := r.callbacks
	r.callbacks = nil
	close(r.done)
	r.mu.Unlock()

	// Callbacks fire on the resolving goroutine, in registration order,
	// outside the lock so they may inspect the Result freely.
	for _, cb := range cbs {
		cb(v, err)
	}
	return nil
}

// OnComplete registers fn to run when the Result settles. If the Result is
// already terminal, fn runs synchronously on the calling goroutine before
// OnComplete returns; otherwise it runs on whichever goroutine settles the
// Result, after callbacks registered earlier.
func (r *Result[T]) OnComplete(fn func(v T, err error)) {
	r.mu.Lock()
	if r.state == Pending {
		r.callbacks = append(r.callbacks, fn)
		r.mu.Unlock()
		return
	}
	v, err := r.value, r.err
	r.mu.Unlock()
	fn(v, err)
}

// Subscribe registers fn to run when the Result settles, without access to
// the typed outcome. Same firing rules as OnComplete.
func (r *Result[T]) Subscribe(fn func()) {
	r.OnComplete(func(T, error) { fn() })
}

// Wait blocks until the Result settles or timeout elapses. A timeout <= 0
// waits forever. The outcome is observed, not consumed: Wait may be called
// any number of times. If the wait gives up, the error is ErrWaitTimeout and
// the Result remains pending.
func (r *Result[T]) Wait(timeout time.Duration) (T, error) {
	if timeout <= 0 {
		<-r.done
		return r.outcome()
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-r.done:
		return r.outcome()
	case <-t.C:
		var zero T
		return zero, ErrWaitTimeout
	}
}

func (r *Result[T]) outcome() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.err
}

// Done returns a channel closed when the Result settles.
func (r *Result[T]) Done() <-chan struct{} { return r.done }

// State returns the current lifecycle state.
func (r *Result[T]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Value returns the resolved value, or the zero value while pending or
// failed.
func (r *Result[T]) Value() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// Err returns the terminal error, nil while pending or on success.
func (r *Result[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Join composes handles into one Result that succeeds once every input has
// settled successfully and fails with the first failure encountered, in
// which case the remaining inputs' outcomes are discarded (they are not
// awaited further; cancelling them is their owners' concern).
func Join(handles ...Waiter) *Result[struct{}] {
	out := New[struct{}]()
	if len(handles) == 0 {
		_ = out.Resolve(struct{}{})
		return out
	}
	var remaining atomic.Int32
	remaining.Store(int32(len(handles)))
	for _, h := range handles {
		h := h
		h.Subscribe(func() {
			if err := h.Err(); err != nil {
				// First failure wins; later settles hit ErrAlreadyResolved
				// and are discarded.
				_ = out.Fail(err)
				return
			}
			if remaining.Add(-1) == 0 {
				_ = out.Resolve(struct{}{})
			}
		})
	}
	return out
}

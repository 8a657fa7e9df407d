// Package bridge adapts begin/end-callback asynchronous APIs into result
// handles. Legacy clients start an operation with a begin function taking a
// completion callback and collect the typed outcome with a matching end
// function; From glues the two to a handle so such APIs compose with the
// rest of the scheduling machinery.
package bridge

import (
	"fmt"

	"github.com/yonglehou/DReAM/internal/result"
)

// From invokes begin with a completion callback; when the callback fires,
// end extracts the typed outcome and settles res with it. Panics raised by
// begin (synchronously) or by end are recovered and forwarded as failures,
// never left to crash the caller or a worker. Returns res for chaining.
func From[T any](begin func(done func()), end func() (T, error), res *result.Result[T]) *result.Result[T] {
	defer func() {
		if r := recover(); r != nil {
			_ = res.Fail(fmt.Errorf("begin panicked: %v", r))
		}
	}()
	begin(func() {
		defer func() {
			if r := recover(); r != nil {
				_ = res.Fail(fmt.Errorf("end panicked: %v", r))
			}
		}()
		v, err := end()
		if err != nil {
			_ = res.Fail(err)
			return
		}
		_ = res.Resolve(v)
	})
	return res
}

// FromValue is From for callbacks that deliver the value directly to the
// completion callback instead of through a separate end call.
func FromValue[T any](begin func(done func(v T, err error)), res *result.Result[T]) *result.Result[T] {
	defer func() {
		if r := recover(); r != nil {
			_ = res.Fail(fmt.Errorf("begin panicked: %v", r))
		}
	}()
	begin(func(v T, err error) {
		if err != nil {
			_ = res.Fail(err)
			return
		}
		_ = res.Resolve(v)
	})
	return res
}

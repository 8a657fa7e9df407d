package bridge_test

import (
	"errors"
	"testing"
	"time"

	"github.com/yonglehou/DReAM/internal/bridge"
	"github.com/yonglehou/DReAM/internal/result"
)

// legacyOp mimics a begin/end API: Begin kicks off work and signals a
// callback when done; End retrieves the outcome afterwards.
type legacyOp struct {
	value int
	err   error
	delay time.Duration
}

func (op *legacyOp) Begin(done func()) {
	go func() {
		time.Sleep(op.delay)
		done()
	}()
}

func (op *legacyOp) End() (int, error) { return op.value, op.err }

func TestFromDeliversEndValue(t *testing.T) {
	op := &legacyOp{value: 42, delay: 10 * time.Millisecond}
	res := bridge.From(op.Begin, op.End, result.New[int]())

	v, err := res.Wait(2 * time.Second)
	if v != 42 || err != nil {
		t.Fatalf("outcome = (%d, %v), want (42, nil)", v, err)
	}
}

func TestFromDeliversEndError(t *testing.T) {
	boom := errors.New("legacy failure")
	op := &legacyOp{err: boom, delay: 5 * time.Millisecond}
	res := bridge.From(op.Begin, op.End, result.New[int]())

	if _, err := res.Wait(2 * time.Second); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the end error", err)
	}
}

func TestFromSynchronousCallback(t *testing.T) {
	// Some legacy APIs complete before begin returns.
	res := bridge.From(func(done func()) { done() },
		func() (string, error) { return "sync", nil },
		result.New[string]())
	if res.State() != result.Succeeded {
		t.Fatalf("state = %v after synchronous completion, want succeeded", res.State())
	}
	if v := res.Value(); v != "sync" {
		t.Errorf("value = %q, want sync", v)
	}
}

func TestFromBeginPanic(t *testing.T) {
	res := bridge.From(func(done func()) { panic("begin blew up") },
		func() (int, error) { return 0, nil },
		result.New[int]())
	if _, err := res.Wait(time.Second); err == nil {
		t.Fatal("begin panic not forwarded as failure")
	}
}

func TestFromEndPanic(t *testing.T) {
	res := bridge.From(func(done func()) { go done() },
		func() (int, error) { panic("end blew up") },
		result.New[int]())
	if _, err := res.Wait(2 * time.Second); err == nil {
		t.Fatal("end panic not forwarded as failure")
	}
}

func TestFromValueDelivers(t *testing.T) {
	res := bridge.FromValue(func(done func(v string, err error)) {
		go done("direct", nil)
	}, result.New[string]())

	v, err := res.Wait(2 * time.Second)
	if v != "direct" || err != nil {
		t.Fatalf("outcome = (%q, %v), want (direct, nil)", v, err)
	}
}

func TestFromValueError(t *testing.T) {
	boom := errors.New("direct failure")
	res := bridge.FromValue(func(done func(v int, err error)) {
		done(0, boom)
	}, result.New[int]())
	if !errors.Is(res.Err(), boom) {
		t.Fatalf("err = %v, want the callback error", res.Err())
	}
}

func TestFromRespectsHandleDeadline(t *testing.T) {
	op := &legacyOp{value: 1, delay: 200 * time.Millisecond}
	res := bridge.From(op.Begin, op.End, result.NewWithTimeout[int](20*time.Millisecond))

	if _, err := res.Wait(2 * time.Second); !errors.Is(err, result.ErrTimedOut) {
		t.Fatalf("err = %v, want ErrTimedOut", err)
	}
	// The late completion is discarded by single assignment.
	time.Sleep(250 * time.Millisecond)
	if res.State() != result.TimedOut {
		t.Errorf("state = %v after late completion, want timed_out", res.State())
	}
}

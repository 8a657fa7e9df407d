package coroutine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/yonglehou/DReAM/internal/coroutine"
	"github.com/yonglehou/DReAM/internal/dispatch"
	"github.com/yonglehou/DReAM/internal/result"
	"github.com/yonglehou/DReAM/internal/taskenv"
)

func newPoolEnv(t *testing.T) (*dispatch.ElasticPool, *taskenv.Env) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	p, err := dispatch.NewElasticPool(dispatch.ElasticConfig{
		Name: t.Name(), Min: 1, Max: 4, IdleTimeout: time.Second,
	}, logger)
	if err != nil {
		t.Fatalf("NewElasticPool: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p, taskenv.New(p)
}

func TestFlowRunsStepsInOrder(t *testing.T) {
	env := taskenv.New(nil)

	gate1 := result.New[int]()
	gate2 := result.New[int]()
	var steps []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		steps = append(steps, s)
		mu.Unlock()
	}

	res := coroutine.Invoke(env, func(c *coroutine.C) (int, error) {
		record("s1")
		a, err := coroutine.Await(c, gate1)
		if err != nil {
			return 0, err
		}
		record("s2")
		b, err := coroutine.Await(c, gate2)
		if err != nil {
			return 0, err
		}
		record("s3")
		return a + b, nil
	}, result.New[int]())

	// The flow is suspended at gate1; later steps must not have run.
	mu.Lock()
	n := len(steps)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("steps before first gate settles = %v", steps)
	}

	_ = gate1.Resolve(10)
	_ = gate2.Resolve(32)

	v, err := res.Wait(2 * time.Second)
	if v != 42 || err != nil {
		t.Fatalf("flow outcome = (%d, %v), want (42, nil)", v, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(steps) != 3 || steps[0] != "s1" || steps[1] != "s2" || steps[2] != "s3" {
		t.Errorf("step order = %v, want [s1 s2 s3]", steps)
	}
}

func TestAwaitTerminalHandleContinuesInline(t *testing.T) {
	env := taskenv.New(nil)
	ready := result.New[string]()
	_ = ready.Resolve("now")

	res := coroutine.Invoke(env, func(c *coroutine.C) (string, error) {
		return coroutine.Await(c, ready)
	}, result.New[string]())

	// In-place queue plus a terminal handle: the flow finishes before
	// Invoke returns.
	if res.State() != result.Succeeded {
		t.Fatalf("state = %v after Invoke, want succeeded", res.State())
	}
	if v := res.Value(); v != "now" {
		t.Errorf("value = %q, want now", v)
	}
}

func TestAwaitPropagatesFailure(t *testing.T) {
	env := taskenv.New(nil)
	gate := result.New[int]()
	boom := errors.New("dependency failed")

	res := coroutine.Invoke(env, func(c *coroutine.C) (int, error) {
		return coroutine.Await(c, gate)
	}, result.New[int]())

	_ = gate.Fail(boom)
	if _, err := res.Wait(2 * time.Second); !errors.Is(err, boom) {
		t.Errorf("flow err = %v, want the awaited failure", err)
	}
}

func TestFlowPanicSettlesAsFailure(t *testing.T) {
	env := taskenv.New(nil)
	res := coroutine.Invoke(env, func(c *coroutine.C) (int, error) {
		panic("flow exploded")
	}, result.New[int]())

	_, err := res.Wait(2 * time.Second)
	if err == nil {
		t.Fatal("panic did not settle the flow handle")
	}
}

func TestIndependentFlowsInterleave(t *testing.T) {
	env := taskenv.New(nil)

	gateA := result.New[int]()
	gateB := result.New[int]()

	resA := coroutine.Invoke(env, func(c *coroutine.C) (int, error) {
		return coroutine.Await(c, gateA)
	}, result.New[int]())
	resB := coroutine.Invoke(env, func(c *coroutine.C) (int, error) {
		return coroutine.Await(c, gateB)
	}, result.New[int]())

	// B settles while A is still suspended.
	_ = gateB.Resolve(2)
	if v, err := resB.Wait(2 * time.Second); v != 2 || err != nil {
		t.Fatalf("flow B = (%d, %v), want (2, nil)", v, err)
	}
	if resA.State() != result.Pending {
		t.Fatal("flow A settled without its gate")
	}

	_ = gateA.Resolve(1)
	if v, err := resA.Wait(2 * time.Second); v != 1 || err != nil {
		t.Fatalf("flow A = (%d, %v), want (1, nil)", v, err)
	}
}

func TestAwaitJoinFailsWithFirstFailure(t *testing.T) {
	env := taskenv.New(nil)
	a := result.New[int]()
	b := result.New[int]()
	boom := errors.New("b failed")

	res := coroutine.Invoke(env, func(c *coroutine.C) (struct{}, error) {
		if err := coroutine.AwaitJoin(c, a, b); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, result.New[struct{}]())

	_ = b.Fail(boom)
	if _, err := res.Wait(2 * time.Second); !errors.Is(err, boom) {
		t.Errorf("join err = %v, want member failure", err)
	}
}

func TestInvokeOnShutDownQueueFailsHandle(t *testing.T) {
	p, env := newPoolEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	res := coroutine.Invoke(env, func(c *coroutine.C) (int, error) {
		return 1, nil
	}, result.New[int]())
	if _, err := res.Wait(time.Second); !errors.Is(err, coroutine.ErrCanceled) {
		t.Errorf("err = %v, want ErrCanceled (handle must not stay pending)", err)
	}
}

func TestSuspendedFlowFailsWhenQueueShutsDown(t *testing.T) {
	p, env := newPoolEnv(t)

	gate := result.New[int]()
	suspended := make(chan struct{})
	res := coroutine.Invoke(env, func(c *coroutine.C) (int, error) {
		close(suspended)
		return coroutine.Await(c, gate)
	}, result.New[int]())

	select {
	case <-suspended:
	case <-time.After(2 * time.Second):
		t.Fatal("flow never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// The gate settles after shutdown; the resumption step is rejected, so
	// the flow must unwind with a failure instead of hanging suspended.
	_ = gate.Resolve(7)
	if _, err := res.Wait(2 * time.Second); !errors.Is(err, coroutine.ErrCanceled) {
		t.Errorf("err = %v, want ErrCanceled", err)
	}
}

func TestSleepSuspendsWithoutBlockingQueue(t *testing.T) {
	env := taskenv.New(nil)

	start := time.Now()
	res := coroutine.Invoke(env, func(c *coroutine.C) (time.Duration, error) {
		coroutine.Sleep(c, 30*time.Millisecond)
		return time.Since(start), nil
	}, result.New[time.Duration]())

	// The in-place queue returned control at the suspension point; other
	// work can run while the flow sleeps.
	ran := false
	env.Queue().Schedule(env, func(ctx context.Context) { ran = true })
	if !ran {
		t.Error("queue was held by a sleeping flow")
	}

	elapsed, err := res.Wait(2 * time.Second)
	if err != nil {
		t.Fatalf("flow err = %v", err)
	}
	if elapsed < 30*time.Millisecond {
		t.Errorf("flow resumed after %v, want at least 30ms", elapsed)
	}
}

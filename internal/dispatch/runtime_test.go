package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yonglehou/DReAM/internal/dispatch"
	"github.com/yonglehou/DReAM/internal/result"
)

func newRuntime(t *testing.T, cfg dispatch.Config) *dispatch.Runtime {
	t.Helper()
	rt, err := dispatch.NewRuntime(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	})
	return rt
}

func TestRuntimeConfiguredLimits(t *testing.T) {
	rt := newRuntime(t, dispatch.Config{
		Strategy:          dispatch.StrategyElastic,
		MinWorkers:        2,
		MaxWorkers:        8,
		BackgroundWorkers: 3,
	})

	limits := rt.ConfiguredLimits()
	if limits.MinWorkers != 2 || limits.MaxWorkers != 8 {
		t.Errorf("limits = %+v, want min 2 max 8", limits)
	}
	if limits.BackgroundWorkers != 3 {
		t.Errorf("background workers = %d, want 3", limits.BackgroundWorkers)
	}
	if limits.Strategy != dispatch.StrategyElastic {
		t.Errorf("strategy = %q, want elastic", limits.Strategy)
	}
}

func TestRuntimeAvailableCapacity(t *testing.T) {
	rt := newRuntime(t, dispatch.Config{
		Strategy:          dispatch.StrategyElastic,
		MinWorkers:        2,
		MaxWorkers:        4,
		BackgroundWorkers: 2,
	})

	snap := rt.AvailableCapacity()
	if snap.LiveWorkers != 2 {
		t.Errorf("live workers = %d at startup, want min (2)", snap.LiveWorkers)
	}
	if snap.BackgroundWorkers != 2 {
		t.Errorf("background workers = %d, want 2", snap.BackgroundWorkers)
	}
}

func TestRuntimeFixedStrategy(t *testing.T) {
	rt := newRuntime(t, dispatch.Config{
		Strategy:   dispatch.StrategyFixed,
		MaxWorkers: 3,
	})

	if live := rt.Primary().Live(); live != 3 {
		t.Errorf("fixed pool live = %d, want 3", live)
	}

	// Same Queue contract as elastic: work runs and settles handles.
	res := dispatch.Go(rt.Primary(), rt.NewEnv(), func(ctx context.Context) (int, error) {
		return 11, nil
	})
	v, err := res.Wait(2 * time.Second)
	if v != 11 || err != nil {
		t.Errorf("Go on fixed pool = (%d, %v), want (11, nil)", v, err)
	}
}

func TestRuntimeInPlaceStrategy(t *testing.T) {
	rt := newRuntime(t, dispatch.Config{Strategy: dispatch.StrategyInPlace, BackgroundWorkers: 1})

	// In-place activation: work has already run when Go returns.
	res := dispatch.Go(rt.Primary(), rt.NewEnv(), func(ctx context.Context) (int, error) {
		return 5, nil
	})
	if res.State() != result.Succeeded {
		t.Errorf("state = %v immediately after in-place Go, want succeeded", res.State())
	}
}

func TestRuntimeUnknownStrategy(t *testing.T) {
	if _, err := dispatch.NewRuntime(dispatch.Config{Strategy: "bogus", MaxWorkers: 1}, testLogger()); err == nil {
		t.Error("unknown strategy accepted")
	}
}

func TestIntoResolvesHandle(t *testing.T) {
	rt := newRuntime(t, dispatch.Config{MinWorkers: 1, MaxWorkers: 2, BackgroundWorkers: 1})

	res := result.New[string]()
	got := dispatch.Into(rt.Primary(), rt.NewEnv(), func(ctx context.Context) (string, error) {
		return "done", nil
	}, res)
	if got != res {
		t.Error("Into did not return the caller's handle")
	}
	if v, err := res.Wait(2 * time.Second); v != "done" || err != nil {
		t.Errorf("outcome = (%q, %v), want (done, nil)", v, err)
	}
}

func TestIntoForwardsErrors(t *testing.T) {
	rt := newRuntime(t, dispatch.Config{MinWorkers: 1, MaxWorkers: 2, BackgroundWorkers: 1})

	boom := errors.New("work failed")
	res := dispatch.Go(rt.Primary(), rt.NewEnv(), func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if _, err := res.Wait(2 * time.Second); !errors.Is(err, boom) {
		t.Errorf("err = %v, want the work's error", err)
	}
}

func TestIntoForwardsPanics(t *testing.T) {
	rt := newRuntime(t, dispatch.Config{MinWorkers: 1, MaxWorkers: 2, BackgroundWorkers: 1})

	res := dispatch.Go(rt.Primary(), rt.NewEnv(), func(ctx context.Context) (int, error) {
		panic("worker-side explosion")
	})
	_, err := res.Wait(2 * time.Second)
	if err == nil {
		t.Fatal("panic was not forwarded as a failure")
	}

	// The worker survives the panic and keeps executing.
	again := dispatch.Go(rt.Primary(), rt.NewEnv(), func(ctx context.Context) (int, error) {
		return 1, nil
	})
	if v, err := again.Wait(2 * time.Second); v != 1 || err != nil {
		t.Errorf("pool unusable after panic: (%d, %v)", v, err)
	}
}

func TestWaitEvictedOutsidePool(t *testing.T) {
	r := result.New[int]()
	go func() { _ = r.Resolve(3) }()
	v, err := dispatch.WaitEvicted(context.Background(), r, time.Second)
	if v != 3 || err != nil {
		t.Errorf("WaitEvicted = (%d, %v), want (3, nil)", v, err)
	}
}

func TestWaitEvictedOnWorker(t *testing.T) {
	// One worker: the inner handle can only resolve if WaitEvicted lets the
	// pool compensate for the blocked worker.
	rt := newRuntime(t, dispatch.Config{MinWorkers: 1, MaxWorkers: 1, BackgroundWorkers: 1})
	env := rt.NewEnv()

	inner := result.New[int]()
	outer := dispatch.Go(rt.Primary(), env, func(ctx context.Context) (int, error) {
		return dispatch.WaitEvicted(ctx, inner, 2*time.Second)
	})
	dispatch.Go(rt.Primary(), env, func(ctx context.Context) (struct{}, error) {
		_ = inner.Resolve(21)
		return struct{}{}, nil
	})

	if v, err := outer.Wait(3 * time.Second); v != 21 || err != nil {
		t.Errorf("outer = (%d, %v), want (21, nil)", v, err)
	}
}

func TestGoAfterShutdownFailsHandle(t *testing.T) {
	rt, err := dispatch.NewRuntime(dispatch.Config{MinWorkers: 1, MaxWorkers: 2, BackgroundWorkers: 1}, testLogger())
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	env := rt.NewEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	res := dispatch.Go(rt.Primary(), env, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	if _, err := res.Wait(time.Second); !errors.Is(err, dispatch.ErrRejected) {
		t.Errorf("err = %v, want ErrRejected (handle must not stay pending)", err)
	}
}

func TestRuntimeShutdownStopsPools(t *testing.T) {
	rt, err := dispatch.NewRuntime(dispatch.Config{MinWorkers: 1, MaxWorkers: 2, BackgroundWorkers: 1}, testLogger())
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if live := rt.Primary().Live(); live != 0 {
		t.Errorf("primary live = %d after shutdown, want 0", live)
	}
	if live := rt.Background().Live(); live != 0 {
		t.Errorf("background live = %d after shutdown, want 0", live)
	}
}

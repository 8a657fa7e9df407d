package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/yonglehou/DReAM/internal/dispatch"
	"github.com/yonglehou/DReAM/internal/execproc"
	"github.com/yonglehou/DReAM/internal/model"
	"github.com/yonglehou/DReAM/internal/store"
)

// waitGrace pads the blocking wait beyond the process timeout so the kill
// path and exit-code retrieval inside the helper get to finish first.
const waitGrace = 10 * time.Second

// Engine drives asynchronous external process runs.
type Engine struct {
	store   store.Store
	runtime *dispatch.Runtime
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewEngine creates a new run engine on top of the dispatch runtime.
func NewEngine(s store.Store, rt *dispatch.Runtime, logger *slog.Logger) *Engine {
	return &Engine{store: s, runtime: rt, logger: logger}
}

// Submit persists run with status "pending" and launches asynchronous
// execution. The execution operates on a copy of the run to avoid data races
// with the caller.
func (e *Engine) Submit(ctx context.Context, run *model.Run) error {
	if err := e.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	runCopy := *run
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(&runCopy)
	}()

	return nil
}

// Wait blocks until all in-flight runs complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// execute runs the lifecycle pending → running → terminal. Everything after
// the running transition is executed by the scheduling core; this method
// only observes the handle and records the outcome.
func (e *Engine) execute(run *model.Run) {
	if err := e.store.UpdateRunStatus(context.Background(), run.ID, model.StatusRunning); err != nil {
		e.logger.Error("failed to transition to running", "run_id", run.ID, "error", err)
		e.finish(run.ID, nil, model.StatusFailed, fmt.Sprintf("failed to start: %v", err))
		return
	}

	start := time.Now()

	timeout := execproc.DefaultTimeout
	if run.TimeoutMS != nil && *run.TimeoutMS > 0 {
		timeout = time.Duration(*run.TimeoutMS) * time.Millisecond
	}

	var stdin io.Reader
	if len(run.Stdin) > 0 {
		stdin = bytes.NewReader(run.Stdin)
	}

	env := e.runtime.NewEnv()
	env.SetValue("run_id", run.ID)

	res := execproc.Run(env, execproc.Spec{
		Program: run.Program,
		Args:    run.Args,
		Stdin:   stdin,
		Timeout: timeout,
	})

	out, err := res.Wait(timeout + waitGrace)
	durationMS := int(time.Since(start).Milliseconds())

	if err != nil {
		status := model.StatusFailed
		if errors.Is(err, execproc.ErrKilled) {
			status = model.StatusKilled
		}
		e.finishWith(run.ID, &start, status, err.Error(), nil, durationMS)
		return
	}

	now := time.Now().UTC()
	stdout, _ := io.ReadAll(out.Stdout)
	stderr, _ := io.ReadAll(out.Stderr)
	completed := &model.Run{
		ID:         run.ID,
		Status:     model.StatusCompleted,
		Stdout:     stdout,
		Stderr:     stderr,
		ExitCode:   &out.ExitCode,
		DurationMS: &durationMS,
		StartedAt:  &start,
		FinishedAt: &now,
	}

	if err := e.store.UpdateRun(context.Background(), completed); err != nil {
		e.logger.Error("failed to update completed run", "run_id", run.ID, "error", err)
	}
}

// finish marks a run terminal with the given status and error message.
// startedAt may be nil if execution never started.
func (e *Engine) finish(id string, startedAt *time.Time, status, errMsg string) {
	var durationMS int
	if startedAt != nil {
		durationMS = int(time.Since(*startedAt).Milliseconds())
	}
	e.finishWith(id, startedAt, status, errMsg, nil, durationMS)
}

func (e *Engine) finishWith(id string, startedAt *time.Time, status, errMsg string, exitCode *int, durationMS int) {
	now := time.Now().UTC()
	run := &model.Run{
		ID:         id,
		Status:     status,
		Error:      errMsg,
		ExitCode:   exitCode,
		DurationMS: &durationMS,
		StartedAt:  startedAt,
		FinishedAt: &now,
	}

	if err := e.store.UpdateRun(context.Background(), run); err != nil {
		e.logger.Error("failed to update terminal run", "run_id", id, "error", err)
	}
}

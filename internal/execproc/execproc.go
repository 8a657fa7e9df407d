// Package execproc runs external programs under the framework's scheduling
// primitives: piped stdio captured by two concurrent copy operations, a kill
// timer enforcing the caller's timeout, and exit-code retrieval retried in a
// bounded polling loop. The whole helper is a coroutine flow, so every wait
// suspends instead of holding a worker.
package execproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/yonglehou/DReAM/internal/coroutine"
	"github.com/yonglehou/DReAM/internal/dispatch"
	"github.com/yonglehou/DReAM/internal/result"
	"github.com/yonglehou/DReAM/internal/taskenv"
)

// DefaultTimeout applies when a Spec carries no timeout.
const DefaultTimeout = 30 * time.Second

// exitPollInterval paces the bounded exit-code retrieval loop.
const exitPollInterval = 25 * time.Millisecond

// ErrKilled reports that the process was forcibly terminated because the
// caller's timeout fired before it finished.
var ErrKilled = errors.New("process killed after timeout")

// ErrExitCodeUnreadable reports that the process exit status could not be
// read within the timeout. The process may be dead; its code is unknown, and
// returning a made-up code would be worse than failing.
var ErrExitCodeUnreadable = errors.New("process exit code unreadable")

// Spec describes one external program execution.
type Spec struct {
	Program string
	Args    []string
	// Stdin, when non-nil, is piped to the process.
	Stdin io.Reader
	// Timeout bounds the whole execution; the process is forcibly killed
	// when it fires. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// Output is the outcome of a finished execution. Stdout and Stderr are
// rewound to their start.
type Output struct {
	ExitCode int
	Stdout   *bytes.Reader
	Stderr   *bytes.Reader
}

// Run launches the program described by spec and returns a handle settling
// with its output. The flow's steps run through env's queue.
func Run(env *taskenv.Env, spec Spec) *result.Result[Output] {
	return coroutine.Invoke(env, func(c *coroutine.C) (Output, error) {
		return run(c, spec)
	}, result.New[Output]())
}

func run(c *coroutine.C, spec Spec) (Output, error) {
	if spec.Program == "" {
		return Output{}, errors.New("no program specified")
	}
	if spec.Timeout <= 0 {
		spec.Timeout = DefaultTimeout
	}

	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Stdin = spec.Stdin
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Output{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Output{}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Output{}, fmt.Errorf("start %s: %w", spec.Program, err)
	}

	// Forced termination on timeout. Killing an already-dead process errors;
	// that error carries no information and is swallowed.
	var killed atomic.Bool
	killTimer := time.AfterFunc(spec.Timeout, func() {
		killed.Store(true)
		_ = cmd.Process.Kill()
	})
	defer killTimer.Stop()

	// Drain stdout and stderr concurrently, one handle each. The pipes hit
	// EOF when the process exits or is killed, so both copies always finish.
	var outBuf, errBuf bytes.Buffer
	env := c.Env()
	outCopy := dispatch.Go(env.Queue(), env, copyStream("stdout", &outBuf, stdout))
	errCopy := dispatch.Go(env.Queue(), env, copyStream("stderr", &errBuf, stderr))
	if err := coroutine.AwaitJoin(c, outCopy, errCopy); err != nil {
		_ = cmd.Process.Kill()
		return Output{}, err
	}

	// Both pipes are drained, so Wait may run. Exit status delivery has
	// proven flaky on some runtimes, hence the handle plus bounded polling
	// instead of trusting a single notification.
	code, err := awaitExit(c, cmd, spec, &killed)
	if err != nil {
		return Output{}, err
	}

	return Output{
		ExitCode: code,
		Stdout:   bytes.NewReader(outBuf.Bytes()),
		Stderr:   bytes.NewReader(errBuf.Bytes()),
	}, nil
}

// copyStream builds the unit of work draining one pipe into dst, reporting
// bytes copied. A copy error surfaces as an operational failure on the
// stream's handle.
func copyStream(name string, dst *bytes.Buffer, src io.Reader) func(ctx context.Context) (int64, error) {
	return func(_ context.Context) (int64, error) {
		n, err := io.Copy(dst, src)
		if err != nil {
			return n, fmt.Errorf("copy %s: %w", name, err)
		}
		return n, nil
	}
}

// awaitExit resolves the process exit code, polling the wait handle for up
// to the configured timeout before giving up with an operational error.
func awaitExit(c *coroutine.C, cmd *exec.Cmd, spec Spec, killed *atomic.Bool) (int, error) {
	waitRes := result.New[int]()
	go func() {
		err := cmd.Wait()
		if killed.Load() {
			_ = waitRes.Fail(fmt.Errorf("%w: %s after %v", ErrKilled, spec.Program, spec.Timeout))
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			_ = waitRes.Resolve(exitErr.ExitCode())
			return
		}
		if err != nil {
			_ = waitRes.Fail(fmt.Errorf("wait for %s: %w", spec.Program, err))
			return
		}
		_ = waitRes.Resolve(cmd.ProcessState.ExitCode())
	}()

	deadline := time.Now().Add(spec.Timeout)
	for waitRes.State() == result.Pending {
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("%w: %s after %v", ErrExitCodeUnreadable, spec.Program, spec.Timeout)
		}
		coroutine.Sleep(c, exitPollInterval)
	}
	return coroutine.Await(c, waitRes)
}

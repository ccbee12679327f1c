// Package isolation runs external tools under a deadline and confines which
// files the service is allowed to read.
package isolation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rendis/flowsketch/pkg/schema"
)

// DefaultWaitDelay bounds how long pipes may drain after the process is killed.
const DefaultWaitDelay = 5 * time.Second

// Command describes one external process invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is appended to the current environment.
	Env []string
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Path, c.Args)
}

// Output is what a finished process produced.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// ExitError reports a process that ran but exited non-zero.
type ExitError struct {
	Command  Command
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command.Path, e.ExitCode)
}

// Runner executes a Command and waits for it.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Output, error)
}

// Compile-time interface check.
var _ Runner = (*ExecRunner)(nil)

// ExecRunner runs commands with os/exec. A zero Timeout relies on ctx alone.
type ExecRunner struct {
	Timeout   time.Duration
	WaitDelay time.Duration
}

// NewExecRunner creates an ExecRunner with the given timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout, WaitDelay: DefaultWaitDelay}
}

// Run starts cmd and waits for it. A process still running at the deadline is
// killed and reported as TIMEOUT_ERROR; a non-zero exit is an *ExitError.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wrapped, execCtx, cleanup := r.wrap(ctx, cmd)
	defer cleanup()

	var stdout, stderr bytes.Buffer
	wrapped.Stdout = &stdout
	wrapped.Stderr = &stderr

	start := time.Now()
	err := wrapped.Run()
	out := &Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: wrapped.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}
	if err == nil {
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return out, schema.NewErrorf(schema.ErrCodeTimeout, "%s did not finish within %s", cmd.Path, r.Timeout).
			WithCause(err).
			WithDetails(map[string]any{"stderr": stderr.String()})
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, &ExitError{Command: cmd, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
	}
	return out, fmt.Errorf("run %s: %w", cmd.Path, err)
}

// wrap builds a context-aware exec.Cmd. The process is killed on cancellation
// and given WaitDelay for pipe drain. cleanup must always be called.
func (r *ExecRunner) wrap(ctx context.Context, cmd Command) (*exec.Cmd, context.Context, func()) {
	execCtx := ctx
	cancel := context.CancelFunc(func() {})
	if r.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, r.Timeout)
	}

	wrapped := exec.CommandContext(execCtx, cmd.Path, cmd.Args...)
	wrapped.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		wrapped.Env = append(os.Environ(), cmd.Env...)
	}
	wrapped.Cancel = func() error {
		if wrapped.Process != nil {
			return wrapped.Process.Kill()
		}
		return nil
	}
	wrapped.WaitDelay = r.WaitDelay
	if wrapped.WaitDelay <= 0 {
		wrapped.WaitDelay = DefaultWaitDelay
	}

	return wrapped, execCtx, cancel
}

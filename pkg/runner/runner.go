// Package runner executes system commands on behalf of the deployment
// pipeline. Every shell-out in the codebase goes through a Runner so tests
// can substitute a fake and record what would have been executed.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds any single command invocation.
const DefaultTimeout = 5 * time.Minute

// Result captures the outcome of one command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout and stderr joined, for log output.
func (r Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes commands. Implementations must be safe for concurrent use.
type Runner interface {
	// Run executes name with args and returns the captured output.
	// A non-zero exit status is returned as an error wrapping ExitError.
	Run(ctx context.Context, name string, args ...string) (Result, error)

	// RunIn is Run with an explicit working directory.
	RunIn(ctx context.Context, dir, name string, args ...string) (Result, error)

	// RunSudo executes the command via sudo when not already root.
	RunSudo(ctx context.Context, name string, args ...string) (Result, error)

	// RunSudoStream is RunSudo for long-lived commands: output is wired
	// straight to out instead of being captured, and the command runs
	// until it exits or ctx is cancelled. No default timeout applies.
	RunSudoStream(ctx context.Context, out io.Writer, name string, args ...string) error

	// CommandExists reports whether name resolves on PATH.
	CommandExists(name string) bool
}

// ExitError is returned when a command runs but exits non-zero.
type ExitError struct {
	Cmd      string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d", e.Cmd, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Cmd, e.ExitCode, msg)
}

// Local runs commands on the host via os/exec.
type Local struct {
	// Timeout applies when the caller's context has no deadline.
	Timeout time.Duration

	// UseSudo prefixes RunSudo invocations with sudo. Disabled when the
	// process already runs as root.
	UseSudo bool

	// Env, when set, replaces the child process environment.
	Env []string
}

// NewLocal returns a Local runner with the default timeout.
func NewLocal(useSudo bool) *Local {
	return &Local{Timeout: DefaultTimeout, UseSudo: useSudo}
}

func (l *Local) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return l.run(ctx, "", name, args...)
}

func (l *Local) RunIn(ctx context.Context, dir, name string, args ...string) (Result, error) {
	return l.run(ctx, dir, name, args...)
}

func (l *Local) RunSudo(ctx context.Context, name string, args ...string) (Result, error) {
	if l.UseSudo {
		args = append([]string{"-n", name}, args...)
		name = "sudo"
	}
	return l.run(ctx, "", name, args...)
}

func (l *Local) RunSudoStream(ctx context.Context, out io.Writer, name string, args ...string) error {
	if l.UseSudo {
		args = append([]string{"-n", name}, args...)
		name = "sudo"
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if l.Env != nil {
		cmd.Env = l.Env
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

func (l *Local) CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func (l *Local) run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if l.Env != nil {
		cmd.Env = l.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, fmt.Errorf("run %s: %w", name, &ExitError{
				Cmd:      name + " " + strings.Join(args, " "),
				ExitCode: res.ExitCode,
				Stderr:   res.Stderr,
			})
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("run %s: %w", name, ctxErr)
		}
		return res, fmt.Errorf("run %s: %w", name, err)
	}
	return res, nil
}

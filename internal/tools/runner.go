// ABOUTME: Bounded subprocess runner shared by the shell and git tools.
// ABOUTME: Hard wall-clock timeout; kills the whole process group on expiry.

package tools

import (
	"bytes"
	"context"
	"errors"
	osexec "os/exec"
	"syscall"
	"time"
)

// ErrTimeout is returned when a command exceeds its wall-clock budget.
var ErrTimeout = errors.New("command timed out")

// maxOutputBytes caps captured stdout/stderr per stream.
const maxOutputBytes = 256 << 10 // 256KB

// runResult carries the outcome of one subprocess run.
type runResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// runner executes already-validated commands under a hard timeout, either
// through the shell or as a direct argv. The timeout is the only cancellation
// mechanism; on expiry the child and its process group are killed, catching
// forked descendants.
type runner struct {
	timeout time.Duration
}

// run executes the command line through the shell and returns its output and
// exit code. A non-zero exit is not an error here; callers decide how to
// present it.
func (r *runner) run(ctx context.Context, commandLine string) (*runResult, error) {
	return r.exec(ctx, "/bin/sh", "-c", commandLine)
}

// runArgv executes the program directly with an argument vector. No shell is
// involved, so no element undergoes word splitting, globbing, or command
// substitution.
func (r *runner) runArgv(ctx context.Context, name string, args ...string) (*runResult, error) {
	return r.exec(ctx, name, args...)
}

func (r *runner) exec(ctx context.Context, name string, args ...string) (*runResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := osexec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, n: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderr, n: maxOutputBytes}

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		var exitErr *osexec.ExitError
		isRealExit := errors.As(err, &exitErr) && exitErr.ExitCode() >= 0
		if !isRealExit && ctx.Err() != nil {
			return nil, ErrTimeout
		}
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, err
		}
	}

	return &runResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

// limitedWriter discards bytes past n, keeping the head of the stream.
type limitedWriter struct {
	w *bytes.Buffer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if remaining := l.n - l.w.Len(); remaining > 0 {
		if len(p) > remaining {
			l.w.Write(p[:remaining])
		} else {
			l.w.Write(p)
		}
	}
	// Report full consumption so the child never blocks on a full pipe.
	return len(p), nil
}

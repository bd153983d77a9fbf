// Package tool runs external executables synchronously and reports how they
// exited, keeping the tail of their stderr for diagnostics.
package tool

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/qiniu/x/log"

	"github.com/goplus/abiguard/internal/errcode"
)

// DefaultTailSize is the number of stderr bytes kept in an Outcome.
const DefaultTailSize = 4 << 10

// Outcome describes how an external tool exited. A zero ExitCode is a
// success; anything else is a tool-reported failure.
type Outcome struct {
	ExitCode   int
	StderrTail string
}

// OK reports whether the tool exited with code 0.
func (o Outcome) OK() bool { return o.ExitCode == 0 }

func (o Outcome) String() string {
	if o.OK() {
		return "success"
	}
	return fmt.Sprintf("tool failure (exit code %d)", o.ExitCode)
}

// Runner runs external tools. The zero value forwards output to the process
// stdout/stderr and waits without a time limit.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer

	// Dir is the working directory; empty means the current one.
	Dir string
	// Env holds extra KEY=VALUE pairs appended to the process environment.
	Env []string
	// Timeout bounds each run; 0 means no limit.
	Timeout time.Duration
	// TailSize is the number of stderr bytes kept; 0 means DefaultTailSize.
	TailSize int
}

// Run executes name with args and waits for it to exit. A nonzero exit code
// is returned in the Outcome, not as an error. Errors are hard failures: the
// executable is missing, could not be started, or ran past the timeout.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (Outcome, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	tailSize := r.TailSize
	if tailSize <= 0 {
		tailSize = DefaultTailSize
	}
	tail := &tailBuffer{max: tailSize}

	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, tail)
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	log.Debugf("run: %s %s", name, strings.Join(args, " "))
	err := cmd.Run()
	if err == nil {
		return Outcome{StderrTail: tail.String()}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if goerrors.Is(ctxErr, context.DeadlineExceeded) {
			return Outcome{}, errors.Wrap(ctxErr, errcode.ToolTimeout, "external tool timed out").
				WithContext("tool", name).WithContext("timeout", r.Timeout.String())
		}
		return Outcome{}, fmt.Errorf("%s: %w", name, ctxErr)
	}
	var exitErr *exec.ExitError
	if goerrors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code == 0 {
			code = -1
		}
		return Outcome{ExitCode: code, StderrTail: tail.String()}, nil
	}
	if goerrors.Is(err, exec.ErrNotFound) || goerrors.Is(err, os.ErrNotExist) {
		return Outcome{}, errors.Wrap(err, errcode.ToolNotFound, "external tool not found").
			WithContext("tool", name)
	}
	return Outcome{}, errors.Wrap(err, errcode.ToolFailed, "failed to start external tool").
		WithContext("tool", name)
}

// RunChecked is Run for tools whose failure must stop the hook: a nonzero
// exit code becomes an ABIGUARD_TOOL_FAILED error.
func (r *Runner) RunChecked(ctx context.Context, name string, args ...string) error {
	out, err := r.Run(ctx, name, args...)
	if err != nil {
		return err
	}
	if !out.OK() {
		return errors.New(errcode.ToolFailed, fmt.Sprintf("%s exited with code %d", name, out.ExitCode)).
			WithContext("tool", name).WithContext("stderr", out.StderrTail)
	}
	return nil
}

// Require checks that path names an existing executable file.
func Require(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, errcode.ToolNotFound, "executable not found").WithContext("path", path)
	}
	if info.IsDir() {
		return errors.New(errcode.ToolNotFound, "executable is a directory").WithContext("path", path)
	}
	if err := checkExecutable(path); err != nil {
		return errors.Wrap(err, errcode.ToolNotFound, "file is not executable").WithContext("path", path)
	}
	return nil
}

// MakeExecutable adds the owner execute bit to path.
func MakeExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, info.Mode()|0o100)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return n, nil
	}
	if over := len(t.buf) + len(p) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) String() string { return string(t.buf) }

// Package runner abstracts execution of package manager commands.
//
// All interaction with yarn and npm goes through the [Runner] interface so
// that resolution logic can be tested against scripted command output
// without the tools installed. The real implementation shells out via
// os/exec with the working directory set per invocation.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrCommandFailed is returned when a command exits non-zero.
// The full stderr output is attached to the wrapping error message.
var ErrCommandFailed = errors.New("command failed")

// Result holds the captured output of one command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes an external command in a working directory and captures
// its output. Implementations must be safe for concurrent use; the remote
// info resolver issues commands from multiple goroutines.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (Result, error)
}

// Exec is the os/exec-backed Runner used in production.
// Extra environment variables (e.g., registry auth tokens) are appended
// to the inherited environment for every invocation.
type Exec struct {
	Env []string
}

// New creates an Exec runner with optional extra environment variables in
// KEY=VALUE form.
func New(env ...string) *Exec {
	return &Exec{Env: env}
}

// Run executes name with args in dir, blocking until the command exits or
// ctx is cancelled. A non-zero exit code yields ErrCommandFailed; the
// Result is populated in either case so callers can inspect output of
// tolerated failures (e.g., "no workspaces").
func (e *Exec) Run(ctx context.Context, dir string, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, fmt.Errorf("%w: %s %s: exit %d: %s",
			ErrCommandFailed, name, strings.Join(args, " "), res.ExitCode, firstLine(res.Stderr))
	default:
		res.ExitCode = -1
		return res, fmt.Errorf("run %s: %w", name, err)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

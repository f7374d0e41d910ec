package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is a scripted Runner for tests. Responses are keyed by the joined
// command line ("yarn list --json"); unkeyed commands fall back to
// OnMissing or an error. Fake records every invocation it receives.
type Fake struct {
	mu        sync.Mutex
	responses map[string]Result
	errs      map[string]error
	calls     []string

	// OnMissing, if set, handles commands with no scripted response.
	OnMissing func(dir, name string, args ...string) (Result, error)
}

// NewFake creates an empty scripted runner.
func NewFake() *Fake {
	return &Fake{
		responses: make(map[string]Result),
		errs:      make(map[string]error),
	}
}

// Script registers stdout for the given command line.
func (f *Fake) Script(cmdline, stdout string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmdline] = Result{Stdout: stdout}
	return f
}

// ScriptErr registers a failure for the given command line.
func (f *Fake) ScriptErr(cmdline string, res Result, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmdline] = res
	f.errs[cmdline] = err
	return f
}

// Calls returns the command lines received so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many recorded calls start with prefix.
func (f *Fake) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Run returns the scripted response for the command, recording the call.
func (f *Fake) Run(ctx context.Context, dir string, name string, args ...string) (Result, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	f.calls = append(f.calls, cmdline)
	res, ok := f.responses[cmdline]
	err := f.errs[cmdline]
	f.mu.Unlock()

	if !ok {
		if f.OnMissing != nil {
			return f.OnMissing(dir, name, args...)
		}
		return Result{ExitCode: 1}, fmt.Errorf("%w: no script for %q", ErrCommandFailed, cmdline)
	}
	return res, err
}

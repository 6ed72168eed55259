package execx

import (
	"context"
	"strings"
	"sync"

	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
)

// FakeRunner is a scriptable Runner for tests. Commands succeed with
// empty output unless a stub matches. Every invocation is recorded.
type FakeRunner struct {
	mu    sync.Mutex
	stubs []stub
	calls [][]string
}

type stub struct {
	prefix string
	result Result
	err    error
}

// NewFakeRunner creates a FakeRunner with no stubs.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// Stub registers a canned result for any command whose space-joined
// argument vector starts with prefix. Later stubs win over earlier ones.
func (f *FakeRunner) Stub(prefix string, result Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs = append(f.stubs, stub{prefix: prefix, result: result, err: err})
}

// Fail registers a non-zero exit for any command matching prefix.
func (f *FakeRunner) Fail(prefix string, exitCode int, stderr string) {
	f.Stub(prefix, Result{Stderr: stderr, ExitCode: exitCode},
		apperrors.NewCommandError(strings.Fields(prefix), exitCode, stderr, nil))
}

// Run records the call and returns the first matching stub, searched
// newest-first, or an empty success.
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)

	joined := strings.Join(call, " ")
	for i := len(f.stubs) - 1; i >= 0; i-- {
		if strings.HasPrefix(joined, f.stubs[i].prefix) {
			return f.stubs[i].result, f.stubs[i].err
		}
	}

	return Result{}, nil
}

// Calls returns a copy of all recorded invocations.
func (f *FakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([][]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// CallCount returns how many recorded invocations match prefix.
func (f *FakeRunner) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, c := range f.calls {
		if strings.HasPrefix(strings.Join(c, " "), prefix) {
			count++
		}
	}
	return count
}

// Reset clears recorded calls but keeps stubs.
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

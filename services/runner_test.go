package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fakeRunner is a scripted command runner. Responses are keyed by the full
// joined command line, falling back to the command name alone. Every call is
// recorded for order and count assertions.
type fakeRunner struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]fakeResponse
	paths     map[string]string
	onRun     func(name string, args []string)
}

type fakeResponse struct {
	out string
	err error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: map[string]fakeResponse{},
		paths:     map[string]string{},
	}
}

func (f *fakeRunner) stub(command, out string, err error) {
	f.responses[command] = fakeResponse{out: out, err: err}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	joined := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	f.calls = append(f.calls, joined)
	f.mu.Unlock()
	if f.onRun != nil {
		f.onRun(name, args)
	}
	if resp, ok := f.responses[joined]; ok {
		return resp.out, resp.err
	}
	if resp, ok := f.responses[name]; ok {
		return resp.out, resp.err
	}
	return "", nil
}

func (f *fakeRunner) RunDir(ctx context.Context, dir, name string, args ...string) (string, error) {
	return f.Run(ctx, name, args...)
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if path, ok := f.paths[name]; ok {
		return path, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
}

func (f *fakeRunner) countCalls(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

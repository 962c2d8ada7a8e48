package git

import (
	"context"
	"strings"
	"sync"
)

// fakeRunner scripts git command responses for tests. Commands are matched
// by their joined argument string; unmatched commands succeed with empty
// output.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []string
}

type fakeResponse struct {
	stdout   string
	stderr   string
	exitCode int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: make(map[string]fakeResponse)}
}

func (f *fakeRunner) stub(argLine, stdout string) {
	f.responses[argLine] = fakeResponse{stdout: stdout}
}

func (f *fakeRunner) stubFail(argLine, stderr string, code int) {
	f.responses[argLine] = fakeResponse{stderr: stderr, exitCode: code}
}

func (f *fakeRunner) record(args []string) fakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	return f.responses[key]
}

func (f *fakeRunner) calledWith(argLine string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if call == argLine {
			return true
		}
	}
	return false
}

func (f *fakeRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	resp := f.record(args)
	if resp.exitCode != 0 {
		return "", &ExecError{
			Args:     args,
			ExitCode: resp.exitCode,
			Stdout:   resp.stdout,
			Stderr:   resp.stderr,
		}
	}
	return resp.stdout, nil
}

func (f *fakeRunner) ExecStatus(ctx context.Context, dir string, args ...string) (ExecResult, error) {
	resp := f.record(args)
	return ExecResult{
		ExitCode: resp.exitCode,
		Stdout:   resp.stdout,
		Stderr:   resp.stderr,
	}, nil
}

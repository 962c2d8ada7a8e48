package stage

import (
	"context"
	"strings"
	"sync"

	"github.com/orchard-dev/orchard/internal/git"
)

// fakeGit scripts git command responses. Commands are matched by their
// joined argument string; each stubbed response is consumed in order and
// the last one is sticky. Unmatched commands succeed with empty output.
type fakeGit struct {
	mu        sync.Mutex
	responses map[string][]fakeResponse
	calls     []string
}

type fakeResponse struct {
	stdout   string
	stderr   string
	exitCode int
}

func newFakeGit() *fakeGit {
	return &fakeGit{responses: make(map[string][]fakeResponse)}
}

func (f *fakeGit) stub(argLine, stdout string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[argLine] = append(f.responses[argLine], fakeResponse{stdout: stdout})
}

func (f *fakeGit) stubFail(argLine, stderr string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[argLine] = append(f.responses[argLine], fakeResponse{stderr: stderr, exitCode: code})
}

func (f *fakeGit) next(args []string) fakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	queue := f.responses[key]
	if len(queue) == 0 {
		return fakeResponse{}
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[key] = queue[1:]
	}
	return resp
}

// calledMatching reports whether any recorded call contains substr.
func (f *fakeGit) calledMatching(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if strings.Contains(call, substr) {
			return true
		}
	}
	return false
}

// countMatching counts recorded calls containing substr.
func (f *fakeGit) countMatching(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.Contains(call, substr) {
			n++
		}
	}
	return n
}

func (f *fakeGit) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	resp := f.next(args)
	if resp.exitCode != 0 {
		return "", &git.ExecError{
			Args:     args,
			ExitCode: resp.exitCode,
			Stdout:   resp.stdout,
			Stderr:   resp.stderr,
		}
	}
	return resp.stdout, nil
}

func (f *fakeGit) ExecStatus(ctx context.Context, dir string, args ...string) (git.ExecResult, error) {
	resp := f.next(args)
	return git.ExecResult{
		ExitCode: resp.exitCode,
		Stdout:   resp.stdout,
		Stderr:   resp.stderr,
	}, nil
}

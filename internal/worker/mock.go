package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockClient scripts Worker CLI responses for tests. Handlers are matched
// by prompt substring in registration order; unmatched prompts fall back
// to Default, then error.
type MockClient struct {
	mu       sync.Mutex
	handlers []mockHandler
	Default  func(req Request) (*Response, error)
	calls    []Request
}

type mockHandler struct {
	match  string
	handle func(req Request) (*Response, error)
}

// NewMockClient returns an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// On registers a handler for prompts containing match.
func (m *MockClient) On(match string, handle func(req Request) (*Response, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, mockHandler{match: match, handle: handle})
	return m
}

// Reply registers a fixed stdout response for prompts containing match.
func (m *MockClient) Reply(match, stdout string) *MockClient {
	return m.On(match, func(Request) (*Response, error) {
		return &Response{Stdout: stdout}, nil
	})
}

// Exec records the call and dispatches to the first matching handler.
func (m *MockClient) Exec(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	handlers := m.handlers
	fallback := m.Default
	m.mu.Unlock()

	for _, h := range handlers {
		if strings.Contains(req.Prompt, h.match) {
			return h.handle(req)
		}
	}
	if fallback != nil {
		return fallback(req)
	}
	return nil, fmt.Errorf("mock worker: no handler for prompt %.80q", req.Prompt)
}

// Calls returns a copy of all recorded requests.
func (m *MockClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallCount returns how many times Exec was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

package llm

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockCompleter is a testify mock of Completer.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCompleter) Name() string { return "mock" }

// StaticCompleter returns a fixed text or error for every call.
type StaticCompleter struct {
	Text string
	Err  error

	mu       sync.Mutex
	requests []Request
}

func (s *StaticCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return &Response{Text: s.Text, Model: "static"}, nil
}

func (s *StaticCompleter) Name() string { return "static" }

// Requests returns the requests received so far.
func (s *StaticCompleter) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (*Response, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

func (f CompleterFunc) Name() string { return "func" }

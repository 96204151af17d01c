package model

import (
	"context"
	"sync"
	"time"
)

// MockClient is a scripted in-memory Client for tests. Each Send consumes
// the next scripted step in order; once the script is exhausted the last
// step repeats. Requests are recorded for assertions.
type MockClient struct {
	mu       sync.Mutex
	script   []MockStep
	cursor   int
	requests []Request
}

// MockStep is one scripted Send outcome.
type MockStep struct {
	Response Response
	Err      error
	Latency  time.Duration
}

// NewMockClient builds a client from scripted steps.
func NewMockClient(steps ...MockStep) *MockClient {
	return &MockClient{script: steps}
}

// TextStep scripts a plain final text response.
func TextStep(text string) MockStep {
	return MockStep{Response: Response{Text: text}}
}

// ErrStep scripts a classified failure.
func ErrStep(kind ErrorKind, err error) MockStep {
	return MockStep{Err: NewError(kind, err)}
}

// Send implements Client.
func (m *MockClient) Send(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.script) == 0 {
		m.mu.Unlock()
		return Response{Text: "ok"}, nil
	}
	step := m.script[m.cursor]
	if m.cursor < len(m.script)-1 {
		m.cursor++
	}
	m.mu.Unlock()

	if step.Latency > 0 {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(step.Latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return step.Response, step.Err
}

// Info implements Client.
func (m *MockClient) Info() Info {
	return Info{Name: "mock", Provider: "mock", SupportsFunctions: true}
}

// Requests returns a copy of every recorded request.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns how many times Send was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

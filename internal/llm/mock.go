package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient implements Client for testing. Responses can be scripted either
// as a queue of canned strings or via a Script function keyed on the prompt.
type MockClient struct {
	// Script, when set, decides the response per prompt.
	Script func(prompt string) (string, error)
	// Responses are consumed in order when Script is nil.
	Responses []string
	// Err, when set, is returned for every call (after Script/Responses).
	Err error

	mu    sync.Mutex
	calls int
	// Prompts records every prompt seen, in call order.
	Prompts []string
}

// Complete returns the next scripted response.
func (m *MockClient) Complete(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.Prompts = append(m.Prompts, req.Prompt)

	if m.Script != nil {
		content, err := m.Script(req.Prompt)
		if err != nil {
			return nil, err
		}
		return &Response{Content: content, Model: m.Model()}, nil
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return nil, fmt.Errorf("mock client has no scripted response for call %d", m.calls)
	}
	content := m.Responses[0]
	m.Responses = m.Responses[1:]
	return &Response{Content: content, Model: m.Model()}, nil
}

// Model identifies the mock in logs and circuit breaker names.
func (m *MockClient) Model() string {
	return "mock"
}

// Calls reports how many completions have been requested.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

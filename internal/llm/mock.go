package llm

import (
	"context"
	"sync"
)

// MockClient is an in-memory Client for tests and local development.
// Responses are returned in the order they were queued; once the queue is
// exhausted it falls back to a canned success.
type MockClient struct {
	mu        sync.Mutex
	responses []*Result
	calls     int
	prompts   []string
}

// NewMockClient creates a mock client with no scripted responses
func NewMockClient() *MockClient {
	return &MockClient{}
}

// QueueResponse adds a scripted response to be returned by the next Generate call
func (m *MockClient) QueueResponse(r *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
}

// QueueContent queues a successful response with the given content
func (m *MockClient) QueueContent(content string) {
	m.QueueResponse(&Result{Success: true, Content: content, Usage: Usage{TotalTokens: len(content) / 4}})
}

// QueueFailure queues a provider-side failure with the given message
func (m *MockClient) QueueFailure(message string) {
	m.QueueResponse(&Result{Success: false, Error: message})
}

// Generate returns the next scripted response and records the prompt
func (m *MockClient) Generate(_ context.Context, prompt string, _ ...Option) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.prompts = append(m.prompts, prompt)

	if len(m.responses) > 0 {
		r := m.responses[0]
		m.responses = m.responses[1:]
		return r, nil
	}

	return &Result{
		Success: true,
		Content: "mock response",
		Usage:   Usage{TotalTokens: 3},
	}, nil
}

// ModelName returns a fixed identifier for the mock provider
func (m *MockClient) ModelName() string {
	return "mock-model"
}

// Calls returns how many times Generate was invoked
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns a copy of all prompts seen so far
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

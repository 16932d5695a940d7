package llm

import (
	"context"
	"sync"
)

// MockLLMClient is a configurable LLMClient for tests.
type MockLLMClient struct {
	// GenerateResponseFunc is called by GenerateResponse. If nil, an empty
	// result is returned.
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	Model    string
	Provider string

	mu      sync.Mutex
	Prompts []string
}

// NewMockLLMClient creates a mock with default names.
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{Model: "mock-model", Provider: "mock"}
}

// GenerateResponse implements LLMClient.
func (m *MockLLMClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()
	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, prompt, systemMessage, temperature)
	}
	return &GenerateResponseResult{}, nil
}

// Calls returns the number of GenerateResponse calls so far.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

// GetModel implements LLMClient.
func (m *MockLLMClient) GetModel() string {
	return m.Model
}

// GetProvider implements LLMClient.
func (m *MockLLMClient) GetProvider() string {
	return m.Provider
}

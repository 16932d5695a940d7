// Package llm provides chat clients for the supported model providers.
package llm

import (
	"context"
)

// LLMClient is the provider-neutral chat interface.
// Use it for dependency injection so tests can swap in MockLLMClient.
type LLMClient interface {
	// GenerateResponse sends one system + user turn and returns the reply.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetProvider returns the provider name used in logs.
	GetProvider() string
}

// GenerateResponseResult is a reply with its token usage.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
	_ LLMClient = (*GeminiClient)(nil)
	_ LLMClient = (*MockLLMClient)(nil)
)

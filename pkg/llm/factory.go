package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

var (
	// ErrProviderNotConfigured is returned when the provider has no API key.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrNoProvider is returned for the "none" provider, which has no client.
	ErrNoProvider = errors.New("no model provider selected")
)

// ProviderSettings holds the per-provider client configuration.
type ProviderSettings struct {
	OpenAI    Config
	Anthropic AnthropicConfig
	Gemini    GeminiConfig
}

// LLMClientFactory resolves a client for a provider.
type LLMClientFactory interface {
	ForProvider(ctx context.Context, provider models.AIProvider) (LLMClient, error)
}

// ClientFactory creates and caches one client per provider.
type ClientFactory struct {
	settings ProviderSettings
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[models.AIProvider]LLMClient
}

var _ LLMClientFactory = (*ClientFactory)(nil)

// NewClientFactory creates a factory.
func NewClientFactory(settings ProviderSettings, logger *zap.Logger) *ClientFactory {
	return &ClientFactory{
		settings: settings,
		logger:   logger,
		clients:  make(map[models.AIProvider]LLMClient),
	}
}

// ForProvider returns the cached client for provider, creating it on first use.
func (f *ClientFactory) ForProvider(ctx context.Context, provider models.AIProvider) (LLMClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[provider]; ok {
		return c, nil
	}

	var (
		client LLMClient
		err    error
	)
	switch provider {
	case models.AIProviderOpenAI:
		if f.settings.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
		}
		cfg := f.settings.OpenAI
		client, err = NewClient(&cfg, f.logger)
	case models.AIProviderClaude:
		if f.settings.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
		}
		cfg := f.settings.Anthropic
		client, err = NewAnthropicClient(&cfg, f.logger)
	case models.AIProviderGemini:
		if f.settings.Gemini.APIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
		}
		cfg := f.settings.Gemini
		client, err = NewGeminiClient(ctx, &cfg, f.logger)
	case models.AIProviderNone:
		return nil, ErrNoProvider
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", provider, err)
	}

	f.logger.Info("Created LLM client",
		zap.String("provider", string(provider)),
		zap.String("model", client.GetModel()))
	f.clients[provider] = client
	return client, nil
}

// Close releases clients holding connections.
func (f *ClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for p, c := range f.clients {
		if closer, ok := c.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s client: %w", p, err))
			}
		}
		delete(f.clients, p)
	}
	return errors.Join(errs...)
}

package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiClient talks to the Google Gemini API.
type GeminiClient struct {
	client   *genai.Client
	model    string
	jsonMode bool
	logger   *zap.Logger
}

// GeminiConfig holds configuration for a Gemini client.
type GeminiConfig struct {
	Model    string
	APIKey   string
	JSONMode bool
}

// NewGeminiClient creates a Gemini client. Close releases its connection.
func NewGeminiClient(ctx context.Context, cfg *GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &GeminiClient{
		client:   client,
		model:    cfg.Model,
		jsonMode: cfg.JSONMode,
		logger:   logger.Named("llm.gemini"),
	}, nil
}

// GenerateResponse generates content with the system prompt as system instruction.
func (c *GeminiClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(float32(temperature))
	if systemMessage != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemMessage)}}
	}
	if c.jsonMode {
		model.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyErrorWithContext(err, c.model, "gemini")
	}

	text, err := geminiText(resp)
	if err != nil {
		return nil, NewError(ErrorTypeResponse, err.Error(), true, nil)
	}

	result := &GenerateResponseResult{Content: text}
	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		result.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return sb.String(), nil
}

// GetModel returns the configured model name.
func (c *GeminiClient) GetModel() string {
	return c.model
}

// GetProvider returns "gemini".
func (c *GeminiClient) GetProvider() string {
	return "gemini"
}

// Close releases the underlying client.
func (c *GeminiClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

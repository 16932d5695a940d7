package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/bucketing"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/llm"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/prompts"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/schemas"
)

// Classifier is an external model that proposes taxonomies and maps
// batches of distinct values onto one.
type Classifier interface {
	bucketing.BatchClassifier
	ProposeTaxonomy(ctx context.Context, column string, samples []models.ValueCount, guide []models.TaxonomyNode) ([]models.TaxonomyNode, error)
}

// ClassifierProvider resolves the Classifier for a provider. The none
// provider yields llm.ErrNoProvider.
type ClassifierProvider interface {
	Classifier(ctx context.Context, provider models.AIProvider) (Classifier, error)
}

const classifierTemperature = 0.2

// AIClassifier implements Classifier on an LLM client. Responses are
// stripped of fences, schema-checked, then decoded leniently.
type AIClassifier struct {
	client  llm.LLMClient
	breaker *llm.CircuitBreaker
	logger  *zap.Logger
}

var _ Classifier = (*AIClassifier)(nil)

// NewAIClassifier creates a classifier. breaker may be nil.
func NewAIClassifier(client llm.LLMClient, breaker *llm.CircuitBreaker, logger *zap.Logger) *AIClassifier {
	return &AIClassifier{
		client:  client,
		breaker: breaker,
		logger: logger.Named("ai-classifier").With(
			zap.String("provider", client.GetProvider()),
			zap.String("model", client.GetModel())),
	}
}

func (c *AIClassifier) generate(ctx context.Context, prompt, system string) (string, error) {
	var content string
	call := func(ctx context.Context) error {
		res, err := c.client.GenerateResponse(ctx, prompt, system, classifierTemperature)
		if err != nil {
			return err
		}
		content = res.Content
		c.logger.Debug("model response",
			zap.Int("prompt_tokens", res.PromptTokens),
			zap.Int("completion_tokens", res.CompletionTokens))
		return nil
	}
	if c.breaker == nil {
		return content, call(ctx)
	}
	return content, c.breaker.Execute(ctx, call)
}

type rawMapping struct {
	Value jsonutil.FlexibleString `json:"value"`
	Path  jsonutil.FlexiblePath   `json:"path"`
}

type rawBatchMapping struct {
	Mappings []rawMapping `json:"mappings"`
}

// MapBatch implements bucketing.BatchClassifier.
func (c *AIClassifier) MapBatch(ctx context.Context, column string, values []string, taxonomy []models.TaxonomyNode) (*models.BatchMapping, error) {
	content, err := c.generate(ctx, prompts.BuildMapBatchPrompt(column, values, taxonomy), prompts.MapBatchSystem)
	if err != nil {
		return nil, err
	}

	doc, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bucketing.ErrInvalidResponse, err)
	}
	if err := schemas.Validate(schemas.BatchMapping, doc); err != nil {
		return nil, fmt.Errorf("%w: %w", bucketing.ErrInvalidResponse, err)
	}

	var raw rawBatchMapping
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", bucketing.ErrInvalidResponse, err)
	}

	out := &models.BatchMapping{Mappings: make([]models.ValueMapping, 0, len(raw.Mappings))}
	for _, m := range raw.Mappings {
		value := strings.TrimSpace(string(m.Value))
		if value == "" {
			continue
		}
		out.Mappings = append(out.Mappings, models.ValueMapping{Value: value, Path: []string(m.Path)})
	}
	return out, nil
}

type rawTaxonomy struct {
	Buckets []models.TaxonomyNode `json:"buckets"`
}

// ProposeTaxonomy asks the model for a taxonomy. The response may be a
// bare array of nodes or an object with a "buckets" array.
func (c *AIClassifier) ProposeTaxonomy(ctx context.Context, column string, samples []models.ValueCount, guide []models.TaxonomyNode) ([]models.TaxonomyNode, error) {
	content, err := c.generate(ctx, prompts.BuildProposeTaxonomyPrompt(column, samples, guide), prompts.ProposeTaxonomySystem)
	if err != nil {
		return nil, err
	}

	doc, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bucketing.ErrInvalidResponse, err)
	}
	if err := schemas.Validate(schemas.Taxonomy, doc); err != nil {
		return nil, fmt.Errorf("%w: %w", bucketing.ErrInvalidResponse, err)
	}

	var nodes []models.TaxonomyNode
	if strings.HasPrefix(strings.TrimSpace(doc), "[") {
		err = json.Unmarshal([]byte(doc), &nodes)
	} else {
		var wrapped rawTaxonomy
		err = json.Unmarshal([]byte(doc), &wrapped)
		nodes = wrapped.Buckets
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bucketing.ErrInvalidResponse, err)
	}

	cleaned := cleanTaxonomy(nodes, 0)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: model proposed no buckets", bucketing.ErrInvalidResponse)
	}
	return cleaned, nil
}

// cleanTaxonomy trims names, drops unnamed nodes and any root named like
// the catch-all bucket.
func cleanTaxonomy(nodes []models.TaxonomyNode, depth int) []models.TaxonomyNode {
	out := make([]models.TaxonomyNode, 0, len(nodes))
	for _, n := range nodes {
		n.Name = strings.TrimSpace(n.Name)
		if n.Name == "" {
			continue
		}
		if depth == 0 && strings.EqualFold(n.Name, models.CatchAllName) {
			continue
		}
		n.Children = cleanTaxonomy(n.Children, depth+1)
		if len(n.Children) == 0 {
			n.Children = nil
		}
		out = append(out, n)
	}
	return out
}

// llmClassifierProvider builds AIClassifiers from an LLM client factory,
// one circuit breaker per provider.
type llmClassifierProvider struct {
	factory   llm.LLMClientFactory
	breakerCf llm.CircuitBreakerConfig
	logger    *zap.Logger

	mu       sync.Mutex
	breakers map[models.AIProvider]*llm.CircuitBreaker
}

// NewClassifierProvider creates a ClassifierProvider backed by factory.
func NewClassifierProvider(factory llm.LLMClientFactory, breakerCfg llm.CircuitBreakerConfig, logger *zap.Logger) ClassifierProvider {
	return &llmClassifierProvider{
		factory:   factory,
		breakerCf: breakerCfg,
		logger:    logger,
		breakers:  make(map[models.AIProvider]*llm.CircuitBreaker),
	}
}

func (p *llmClassifierProvider) Classifier(ctx context.Context, provider models.AIProvider) (Classifier, error) {
	if provider == models.AIProviderNone {
		return nil, llm.ErrNoProvider
	}
	client, err := p.factory.ForProvider(ctx, provider)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	breaker, ok := p.breakers[provider]
	if !ok {
		breaker = llm.NewCircuitBreaker(p.breakerCf)
		p.breakers[provider] = breaker
	}
	p.mu.Unlock()

	return NewAIClassifier(client, breaker, p.logger), nil
}

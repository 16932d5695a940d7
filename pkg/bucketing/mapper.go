package bucketing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/retry"
)

// BatchClassifier maps a batch of distinct values onto taxonomy paths.
type BatchClassifier interface {
	MapBatch(ctx context.Context, column string, values []string, taxonomy []models.TaxonomyNode) (*models.BatchMapping, error)
}

// CancelCheck reports whether the job has been cancelled externally.
type CancelCheck func(ctx context.Context) (bool, error)

// MapperConfig controls batching and retry of classifier calls.
type MapperConfig struct {
	BatchSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

// DefaultMapperConfig returns 50 values per batch, 3 attempts, 2s cool-down.
func DefaultMapperConfig() MapperConfig {
	return MapperConfig{BatchSize: 50, MaxAttempts: 3, RetryDelay: 2 * time.Second}
}

// MapSummary describes one BatchMapper run.
type MapSummary struct {
	Batches       int
	FailedBatches int
	MappedValues  int
	CreatedNodes  int
}

// Mapper drives the external classifier over all distinct values, one batch
// at a time, growing the tree and filling the exact map.
type Mapper struct {
	tree       *Tree
	exact      ExactMap
	classifier BatchClassifier
	cfg        MapperConfig
	tracker    *Tracker
	cancelled  CancelCheck
	logger     *zap.Logger
}

// NewMapper creates a mapper over tree and exact. tracker and cancelled may be nil.
func NewMapper(tree *Tree, exact ExactMap, classifier BatchClassifier, cfg MapperConfig, tracker *Tracker, cancelled CancelCheck, logger *zap.Logger) *Mapper {
	def := DefaultMapperConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return &Mapper{
		tree:       tree,
		exact:      exact,
		classifier: classifier,
		cfg:        cfg,
		tracker:    tracker,
		cancelled:  cancelled,
		logger:     logger.Named("batch-mapper"),
	}
}

// Map classifies values in batches. Batches that still fail after all
// attempts are counted and skipped. Only cancellation aborts the run.
func (m *Mapper) Map(ctx context.Context, column string, values []string) (*MapSummary, error) {
	summary := &MapSummary{}
	total := (len(values) + m.cfg.BatchSize - 1) / m.cfg.BatchSize

	for start := 0; start < len(values); start += m.cfg.BatchSize {
		if err := checkCancelled(ctx, m.cancelled, m.logger); err != nil {
			return summary, err
		}

		end := min(start+m.cfg.BatchSize, len(values))
		batch := values[start:end]
		summary.Batches++

		mapping, err := retry.Attempt(ctx, m.cfg.MaxAttempts, m.cfg.RetryDelay,
			func(ctx context.Context, attempt int) (*models.BatchMapping, error) {
				res, err := m.classifier.MapBatch(ctx, column, batch, SimplifyTaxonomy(m.tree))
				if err == nil && (res == nil || res.Mappings == nil) {
					err = ErrInvalidResponse
				}
				if err != nil {
					m.logger.Warn("Batch classification attempt failed",
						zap.Int("batch", summary.Batches),
						zap.Int("attempt", attempt),
						zap.Error(err))
					return nil, err
				}
				return res, nil
			})
		if err != nil {
			if ctx.Err() != nil {
				return summary, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			}
			summary.FailedBatches++
			m.logger.Error("Giving up on batch, values stay unmapped",
				zap.Int("batch", summary.Batches),
				zap.Int("values", len(batch)),
				zap.Error(err))
		} else {
			mapped, created := m.apply(batch, mapping)
			summary.MappedValues += mapped
			summary.CreatedNodes += created
		}

		if m.tracker != nil {
			m.tracker.Report(ctx, PhaseBatchClassification, float64(summary.Batches)/float64(total),
				fmt.Sprintf("Classified batch %d of %d", summary.Batches, total))
		}
	}

	m.logger.Info("Batch classification finished",
		zap.String("column", column),
		zap.Int("batches", summary.Batches),
		zap.Int("failed_batches", summary.FailedBatches),
		zap.Int("mapped_values", summary.MappedValues),
		zap.Int("created_nodes", summary.CreatedNodes))
	return summary, nil
}

// apply writes a validated response into the tree and exact map. Values not
// part of the batch and empty paths are ignored.
func (m *Mapper) apply(batch []string, mapping *models.BatchMapping) (mapped, created int) {
	inBatch := make(map[string]struct{}, len(batch))
	for _, v := range batch {
		inBatch[strings.TrimSpace(v)] = struct{}{}
	}
	for _, vm := range mapping.Mappings {
		value := strings.TrimSpace(vm.Value)
		if _, ok := inBatch[value]; !ok {
			continue
		}
		path, n := m.tree.FindOrCreatePath(vm.Path)
		if len(path) == 0 {
			continue
		}
		created += n
		if _, seen := m.exact[value]; !seen {
			mapped++
		}
		m.exact[value] = path
	}
	return mapped, created
}

// checkCancelled returns ErrCancelled when ctx is done or the job was
// cancelled externally. Failures of the external check are only logged.
func checkCancelled(ctx context.Context, cancelled CancelCheck, logger *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if cancelled == nil {
		return nil
	}
	yes, err := cancelled(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		logger.Warn("Cancellation check failed", zap.Error(err))
		return nil
	}
	if yes {
		return ErrCancelled
	}
	return nil
}

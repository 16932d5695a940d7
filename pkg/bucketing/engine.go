package bucketing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// StreamOpener opens the source file of a run. The returned stream is closed
// by the engine on every exit path.
type StreamOpener func(ctx context.Context) (RecordStream, func() error, error)

// Config tunes the engine phases.
type Config struct {
	Mapper         MapperConfig
	ProgressStride int
}

// RunInput is everything one classification run needs.
type RunInput struct {
	WorkbookID   uuid.UUID
	Column       string
	Taxonomy     []models.TaxonomyNode
	UniqueValues map[string]int
	ExpectedRows int
	Open         StreamOpener

	// Tree and Exact replace Taxonomy when set, e.g. for the deterministic
	// flat tree.
	Tree  *Tree
	Exact ExactMap

	Sink      ProgressSink
	Cancelled CancelCheck
}

// Engine runs the build, map, assign and finalize phases for one job at a time
// per call. Calls do not share state.
type Engine struct {
	classifier BatchClassifier
	cfg        Config
	logger     *zap.Logger
}

// NewEngine creates an engine. A nil classifier skips batch mapping.
func NewEngine(classifier BatchClassifier, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		classifier: classifier,
		cfg:        cfg,
		logger:     logger.Named("bucketing"),
	}
}

// Run executes the full pipeline and returns the finished result.
// No result is returned on failure.
func (e *Engine) Run(ctx context.Context, in RunInput) (*models.AnalysisResult, error) {
	if in.Column == "" {
		return nil, fmt.Errorf("%w: no column selected", ErrInputInvalid)
	}
	if in.Open == nil {
		return nil, fmt.Errorf("%w: no source file", ErrInputInvalid)
	}

	tracker := NewTracker(in.Sink, e.logger)
	tracker.Report(ctx, PhaseInitialization, 0, "Building bucket tree")

	tree, exact := in.Tree, in.Exact
	if tree == nil {
		if len(in.Taxonomy) == 0 {
			return nil, fmt.Errorf("%w: taxonomy is empty", ErrInputInvalid)
		}
		tree = BuildTree(in.Taxonomy)
	}
	if exact == nil {
		exact = make(ExactMap)
	}
	if err := checkCancelled(ctx, in.Cancelled, e.logger); err != nil {
		return nil, err
	}
	tracker.Report(ctx, PhaseInitialization, 1, "Bucket tree ready")

	values := SortedValues(in.UniqueValues)
	if e.classifier != nil && len(values) > 0 {
		distinct := make([]string, len(values))
		for i, vc := range values {
			distinct[i] = vc.Value
		}
		mapper := NewMapper(tree, exact, e.classifier, e.cfg.Mapper, tracker, in.Cancelled, e.logger)
		if _, err := mapper.Map(ctx, in.Column, distinct); err != nil {
			return nil, err
		}
	}
	tracker.Report(ctx, PhaseBatchClassification, 1, "Classification of distinct values complete")

	stream, closeStream, err := in.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open source file: %w", ErrInputInvalid, err)
	}
	defer func() {
		if closeStream == nil {
			return
		}
		if err := closeStream(); err != nil {
			e.logger.Warn("Failed to close source file", zap.Error(err))
		}
	}()

	expected := in.ExpectedRows
	if expected <= 0 {
		for _, c := range in.UniqueValues {
			expected += c
		}
	}
	assigner := NewAssigner(tree, NewClassifier(tree, exact), e.cfg.ProgressStride, tracker, in.Cancelled, e.logger)
	stats, err := assigner.Assign(ctx, stream, in.Column, expected)
	if err != nil {
		return nil, err
	}

	tracker.Report(ctx, PhaseFinalize, 0, "Finalizing results")
	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("bucket tree inconsistent: %w", err)
	}
	if got := tree.TotalRootRows(); got != stats.TotalRows {
		return nil, fmt.Errorf("bucket tree inconsistent: root rows %d != total rows %d", got, stats.TotalRows)
	}

	result := &models.AnalysisResult{
		ID:             uuid.New(),
		WorkbookID:     in.WorkbookID,
		SelectedColumn: in.Column,
		CreatedAt:      time.Now().UTC(),
		RootBuckets:    tree.Roots,
		Stats: models.AnalysisStats{
			UniqueValues: len(in.UniqueValues),
			EmptyCount:   tree.CatchAll().RowCount,
			TotalRows:    stats.TotalRows,
		},
	}
	e.logger.Info("Classification run complete",
		zap.String("column", in.Column),
		zap.Int("buckets", tree.NodeCount()),
		zap.Int("total_rows", stats.TotalRows))
	return result, nil
}

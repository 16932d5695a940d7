package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/bucketing"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/config"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/csvstream"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/logging"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/queue"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/repositories"
)

// FlatRootLimit caps the number of value buckets of the deterministic tree.
const FlatRootLimit = 100

// QueuedMessage is the message of a freshly created job.
const QueuedMessage = "Job added to queue..."

// ProposeInput selects the column and classifier of an analysis.
type ProposeInput struct {
	WorkbookID uuid.UUID
	Column     string
	Provider   models.AIProvider
	Guide      []models.TaxonomyNode
}

// FinalizeInput carries a confirmed taxonomy into a background job.
type FinalizeInput struct {
	WorkbookID   uuid.UUID
	Column       string
	Taxonomy     []models.TaxonomyNode
	UniqueValues map[string]int
	Provider     models.AIProvider
}

// BucketRows is a page of the source rows assigned to one bucket subtree.
type BucketRows struct {
	BucketID   string              `json:"bucketId"`
	BucketName string              `json:"bucketName"`
	RowCount   int                 `json:"rowCount"`
	Columns    []string            `json:"columns"`
	Rows       []map[string]string `json:"rows"`
}

// AnalysisService runs the propose, finalize and browse steps of an analysis.
type AnalysisService interface {
	// Propose profiles the column and asks the classifier for a taxonomy.
	// With provider none the flat bucketing runs immediately and the
	// proposal carries its result.
	Propose(ctx context.Context, in ProposeInput) (*models.TaxonomyProposal, error)
	// Finalize records a queued job and hands it to the job queue.
	Finalize(ctx context.Context, in FinalizeInput) (*models.ClassificationJob, error)
	GetResult(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error)
	// BucketRows returns up to the configured number of rows of the bucket
	// and all its descendants, in file order.
	BucketRows(ctx context.Context, workbookID, analysisID uuid.UUID, bucketID string) (*BucketRows, error)
}

type analysisService struct {
	workbooks   WorkbookService
	jobs        repositories.JobRepository
	results     repositories.AnalysisRepository
	classifiers ClassifierProvider
	jobQueue    queue.JobQueue
	engineCfg   bucketing.Config
	cfg         config.ClassificationConfig
	logger      *zap.Logger
}

var _ AnalysisService = (*analysisService)(nil)

func NewAnalysisService(
	workbooks WorkbookService,
	jobs repositories.JobRepository,
	results repositories.AnalysisRepository,
	classifiers ClassifierProvider,
	jobQueue queue.JobQueue,
	cfg config.ClassificationConfig,
	logger *zap.Logger,
) AnalysisService {
	return &analysisService{
		workbooks:   workbooks,
		jobs:        jobs,
		results:     results,
		classifiers: classifiers,
		jobQueue:    jobQueue,
		engineCfg:   EngineConfig(cfg),
		cfg:         cfg,
		logger:      logger.Named("analysis-service"),
	}
}

// EngineConfig maps classification settings onto the engine.
func EngineConfig(cfg config.ClassificationConfig) bucketing.Config {
	return bucketing.Config{
		Mapper: bucketing.MapperConfig{
			BatchSize:   cfg.BatchSize,
			MaxAttempts: cfg.MaxAttempts,
			RetryDelay:  cfg.RetryDelay,
		},
		ProgressStride: cfg.ProgressStride,
	}
}

func (s *analysisService) loadWorkbook(ctx context.Context, id uuid.UUID, column string) (*models.Workbook, error) {
	if strings.TrimSpace(column) == "" {
		return nil, fmt.Errorf("%w: selectedColumn is required", apperrors.ErrInvalidInput)
	}
	wb, err := s.workbooks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !wb.HasColumn(column) {
		return nil, fmt.Errorf("%w: column %q not found", apperrors.ErrInvalidInput, column)
	}
	return wb, nil
}

func (s *analysisService) Propose(ctx context.Context, in ProposeInput) (*models.TaxonomyProposal, error) {
	wb, err := s.loadWorkbook(ctx, in.WorkbookID, in.Column)
	if err != nil {
		return nil, err
	}

	reader, err := s.workbooks.Open(ctx, wb)
	if err != nil {
		return nil, err
	}
	stats, err := csvstream.UniqueValues(reader, in.Column, s.cfg.UniqueValueLimit)
	reader.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}

	proposal := &models.TaxonomyProposal{
		SelectedColumn: in.Column,
		Provider:       in.Provider,
		UniqueValues:   stats.Values,
		Stats: models.AnalysisStats{
			UniqueValues: len(stats.Values),
			EmptyCount:   stats.EmptyCount,
			TotalRows:    stats.TotalRows,
		},
	}
	s.logger.Info("Profiled column",
		zap.String("workbook_id", wb.ID.String()),
		zap.String("column", in.Column),
		zap.Int("unique_values", len(stats.Values)),
		zap.Int("rows", stats.TotalRows))

	if in.Provider == models.AIProviderNone {
		result, err := s.runFlat(ctx, wb, in.Column, stats.Values)
		if err != nil {
			return nil, err
		}
		proposal.Result = result
		proposal.Proposal = []models.TaxonomyNode{}
		return proposal, nil
	}

	classifier, err := s.classifiers.Classifier(ctx, in.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	samples := csvstream.TopValues(stats.Values, s.cfg.ProposalSamples)
	nodes, err := classifier.ProposeTaxonomy(ctx, in.Column, samples, in.Guide)
	if err != nil {
		return nil, fmt.Errorf("propose taxonomy: %w", err)
	}
	proposal.Proposal = nodes
	return proposal, nil
}

// runFlat buckets the column by its most frequent values without a classifier.
func (s *analysisService) runFlat(ctx context.Context, wb *models.Workbook, column string, values map[string]int) (*models.AnalysisResult, error) {
	tree, exact := bucketing.FlatTree(values, FlatRootLimit)
	engine := bucketing.NewEngine(nil, s.engineCfg, s.logger)
	result, err := engine.Run(ctx, bucketing.RunInput{
		WorkbookID:   wb.ID,
		Column:       column,
		UniqueValues: values,
		ExpectedRows: wb.RowCount,
		Open:         WorkbookOpener(s.workbooks, wb),
		Tree:         tree,
		Exact:        exact,
	})
	if err != nil {
		return nil, err
	}
	if err := s.results.Create(ctx, result); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	return result, nil
}

func (s *analysisService) Finalize(ctx context.Context, in FinalizeInput) (*models.ClassificationJob, error) {
	wb, err := s.loadWorkbook(ctx, in.WorkbookID, in.Column)
	if err != nil {
		return nil, err
	}
	if len(in.Taxonomy) == 0 && in.Provider != models.AIProviderNone {
		return nil, fmt.Errorf("%w: confirmedBuckets is required", apperrors.ErrInvalidInput)
	}
	if in.Provider != models.AIProviderNone {
		if _, err := s.classifiers.Classifier(ctx, in.Provider); err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
		}
	}

	now := time.Now().UTC()
	job := &models.ClassificationJob{
		ID:             uuid.New(),
		WorkbookID:     wb.ID,
		SelectedColumn: in.Column,
		Provider:       in.Provider,
		Status:         models.JobStatusQueued,
		Progress:       0,
		Message:        QueuedMessage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	req := &models.ClassificationRequest{
		JobID:             job.ID,
		WorkbookID:        wb.ID,
		SelectedColumn:    in.Column,
		ConfirmedTaxonomy: in.Taxonomy,
		UniqueValues:      in.UniqueValues,
		Provider:          in.Provider,
	}
	if err := s.jobQueue.Enqueue(ctx, req); err != nil {
		status := models.JobStatusFailed
		message := "Failed to queue job: " + logging.SanitizeError(err)
		if _, uerr := s.jobs.Update(context.WithoutCancel(ctx), job.ID, models.JobUpdate{Status: &status, Message: &message}); uerr != nil {
			s.logger.Error("Failed to mark unqueued job failed",
				zap.String("job_id", job.ID.String()),
				zap.Error(uerr))
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("Queued classification job",
		zap.String("job_id", job.ID.String()),
		zap.String("workbook_id", wb.ID.String()),
		zap.String("column", in.Column),
		zap.String("provider", string(in.Provider)))
	return job, nil
}

func (s *analysisService) GetResult(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error) {
	return s.results.GetByID(ctx, id)
}

func (s *analysisService) BucketRows(ctx context.Context, workbookID, analysisID uuid.UUID, bucketID string) (*BucketRows, error) {
	wb, err := s.workbooks.Get(ctx, workbookID)
	if err != nil {
		return nil, err
	}
	result, err := s.results.GetByID(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if result.WorkbookID != wb.ID {
		return nil, fmt.Errorf("%w: analysis %s does not belong to workbook %s", apperrors.ErrNotFound, analysisID, workbookID)
	}

	tree := bucketing.FromRoots(result.RootBuckets)
	node := tree.FindByID(bucketID)
	if node == nil {
		return nil, fmt.Errorf("%w: bucket %s", apperrors.ErrNotFound, bucketID)
	}

	indices := subtreeIndices(node)
	reader, err := s.workbooks.Open(ctx, wb)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	rows, err := csvstream.CollectRows(reader, indices, s.cfg.BucketRowsLimit)
	if err != nil {
		return nil, fmt.Errorf("read bucket rows: %w", err)
	}
	return &BucketRows{
		BucketID:   node.ID,
		BucketName: node.Name,
		RowCount:   node.RowCount,
		Columns:    wb.Columns,
		Rows:       rows,
	}, nil
}

// subtreeIndices collects the row indices of node and its descendants in
// ascending order.
func subtreeIndices(node *models.BucketNode) []int {
	var out []int
	var collect func(n *models.BucketNode)
	collect = func(n *models.BucketNode) {
		out = append(out, n.RowIndices...)
		for _, c := range n.Children {
			collect(c)
		}
	}
	collect(node)
	sort.Ints(out)
	return out
}

// WorkbookOpener adapts a workbook's stored file to the engine.
func WorkbookOpener(workbooks WorkbookService, wb *models.Workbook) bucketing.StreamOpener {
	return func(ctx context.Context) (bucketing.RecordStream, func() error, error) {
		reader, err := workbooks.Open(ctx, wb)
		if err != nil {
			return nil, nil, err
		}
		return reader, reader.Close, nil
	}
}

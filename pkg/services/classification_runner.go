package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/bucketing"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/config"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/csvstream"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/llm"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/logging"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/queue"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/repositories"
)

// CompletedMessage is the message of a successfully finished job.
const CompletedMessage = "Analysis complete"

// ClassificationRunner executes one queued classification request end to
// end and records the outcome on the job.
type ClassificationRunner struct {
	workbooks   WorkbookService
	jobs        repositories.JobRepository
	results     repositories.AnalysisRepository
	classifiers ClassifierProvider
	publisher   queue.ProgressPublisher
	engineCfg   bucketing.Config
	uniqueLimit int
	logger      *zap.Logger
}

func NewClassificationRunner(
	workbooks WorkbookService,
	jobs repositories.JobRepository,
	results repositories.AnalysisRepository,
	classifiers ClassifierProvider,
	publisher queue.ProgressPublisher,
	cfg config.ClassificationConfig,
	logger *zap.Logger,
) *ClassificationRunner {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &ClassificationRunner{
		workbooks:   workbooks,
		jobs:        jobs,
		results:     results,
		classifiers: classifiers,
		publisher:   publisher,
		engineCfg:   EngineConfig(cfg),
		uniqueLimit: cfg.UniqueValueLimit,
		logger:      logger.Named("classification-runner"),
	}
}

// Run processes req. A cancelled job returns an error wrapping
// context.Canceled; any other failure is recorded on the job and returned.
func (r *ClassificationRunner) Run(ctx context.Context, req *models.ClassificationRequest) error {
	logger := r.logger.With(zap.String("job_id", req.JobID.String()))

	job, err := r.jobs.GetByID(ctx, req.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.IsTerminal() {
		logger.Info("Skipping job in terminal state", zap.String("status", string(job.Status)))
		return nil
	}

	result, err := r.classify(ctx, req, logger)
	if err != nil {
		if errors.Is(err, bucketing.ErrCancelled) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			r.finish(ctx, req, models.JobStatusCancelled, "Job cancelled", nil, logger)
			logger.Info("Classification cancelled")
			return fmt.Errorf("%w: %w", bucketing.ErrCancelled, context.Canceled)
		}
		r.finish(ctx, req, models.JobStatusFailed, "Analysis failed: "+logging.SanitizeError(err), nil, logger)
		logger.Error("Classification failed", zap.String("error", logging.SanitizeError(err)))
		return err
	}

	if err := r.results.Create(context.WithoutCancel(ctx), result); err != nil {
		r.finish(ctx, req, models.JobStatusFailed, "Analysis failed: could not save result", nil, logger)
		return fmt.Errorf("save analysis: %w", err)
	}
	r.finish(ctx, req, models.JobStatusCompleted, CompletedMessage, result, logger)
	logger.Info("Classification completed",
		zap.String("result_id", result.ID.String()),
		zap.Int("total_rows", result.Stats.TotalRows))
	return nil
}

func (r *ClassificationRunner) classify(ctx context.Context, req *models.ClassificationRequest, logger *zap.Logger) (*models.AnalysisResult, error) {
	wb, err := r.workbooks.Get(ctx, req.WorkbookID)
	if err != nil {
		return nil, fmt.Errorf("%w: load workbook: %w", bucketing.ErrInputInvalid, err)
	}

	var classifier Classifier
	if req.Provider != models.AIProviderNone && req.Provider != "" {
		classifier, err = r.classifiers.Classifier(ctx, req.Provider)
		if err != nil && !isNoProvider(err) {
			return nil, fmt.Errorf("%w: %w", bucketing.ErrInputInvalid, err)
		}
	}

	values := req.UniqueValues
	if len(values) == 0 {
		if values, err = r.profile(ctx, wb, req.SelectedColumn); err != nil {
			return nil, err
		}
	}

	in := bucketing.RunInput{
		WorkbookID:   wb.ID,
		Column:       req.SelectedColumn,
		Taxonomy:     req.ConfirmedTaxonomy,
		UniqueValues: values,
		ExpectedRows: wb.RowCount,
		Open:         WorkbookOpener(r.workbooks, wb),
		Sink:         NewJobProgressSink(req.JobID, r.jobs, r.publisher, logger),
		Cancelled:    NewJobCancelCheck(req.JobID, r.jobs),
	}
	if classifier == nil && len(req.ConfirmedTaxonomy) == 0 {
		in.Tree, in.Exact = bucketing.FlatTree(values, FlatRootLimit)
	}

	var batch bucketing.BatchClassifier
	if classifier != nil {
		batch = classifier
	}
	return bucketing.NewEngine(batch, r.engineCfg, logger).Run(ctx, in)
}

func (r *ClassificationRunner) profile(ctx context.Context, wb *models.Workbook, column string) (map[string]int, error) {
	reader, err := r.workbooks.Open(ctx, wb)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bucketing.ErrInputInvalid, err)
	}
	defer reader.Close()
	stats, err := csvstream.UniqueValues(reader, column, r.uniqueLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bucketing.ErrInputInvalid, err)
	}
	return stats.Values, nil
}

// finish moves the job to a terminal state. A job that reached a terminal
// state in the meantime is left as is.
func (r *ClassificationRunner) finish(ctx context.Context, req *models.ClassificationRequest, status models.JobStatus, message string, result *models.AnalysisResult, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	update := models.JobUpdate{Status: &status, Message: &message}
	if result != nil {
		progress := 100
		update.Progress = &progress
		update.ResultID = &result.ID
	}

	job, err := r.jobs.Update(ctx, req.JobID, update)
	switch {
	case errors.Is(err, apperrors.ErrJobTerminal):
		logger.Info("Job already finished", zap.String("wanted_status", string(status)))
		return
	case err != nil:
		logger.Error("Failed to record job outcome",
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	publishJob(ctx, r.publisher, logger, job, "")
}

// isNoProvider reports whether err means no classifier is available.
func isNoProvider(err error) bool {
	return errors.Is(err, llm.ErrNoProvider)
}

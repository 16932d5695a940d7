package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/bucketing"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/queue"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/repositories"
)

// JobCanceller stops a job running in this process. Cancel returns false
// when the job is not running here.
type JobCanceller interface {
	Cancel(id string) bool
}

// JobService reads and cancels classification jobs.
type JobService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error)
	ListByWorkbook(ctx context.Context, workbookID uuid.UUID) ([]*models.ClassificationJob, error)
	// Cancel marks the job cancelled. Terminal jobs yield apperrors.ErrJobTerminal.
	Cancel(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error)
}

type jobService struct {
	repo      repositories.JobRepository
	publisher queue.ProgressPublisher
	canceller JobCanceller
	logger    *zap.Logger
}

var _ JobService = (*jobService)(nil)

// NewJobService creates a JobService. canceller may be nil when jobs run in
// another process; those workers observe the cancelled status themselves.
func NewJobService(repo repositories.JobRepository, publisher queue.ProgressPublisher, canceller JobCanceller, logger *zap.Logger) JobService {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &jobService{
		repo:      repo,
		publisher: publisher,
		canceller: canceller,
		logger:    logger.Named("job-service"),
	}
}

func (s *jobService) Get(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *jobService) ListByWorkbook(ctx context.Context, workbookID uuid.UUID) ([]*models.ClassificationJob, error) {
	return s.repo.ListByWorkbook(ctx, workbookID)
}

func (s *jobService) Cancel(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error) {
	status := models.JobStatusCancelled
	message := "Job cancelled by user"
	job, err := s.repo.Update(ctx, id, models.JobUpdate{Status: &status, Message: &message})
	if err != nil {
		return nil, err
	}

	if s.canceller != nil && s.canceller.Cancel(id.String()) {
		s.logger.Info("Stopped running job", zap.String("job_id", id.String()))
	}
	publishJob(ctx, s.publisher, s.logger, job, "")
	return job, nil
}

// publishJob emits the job's current state. Failures are logged only.
func publishJob(ctx context.Context, publisher queue.ProgressPublisher, logger *zap.Logger, job *models.ClassificationJob, phase string) {
	event := models.ProgressEvent{
		JobID:     job.ID,
		Status:    job.Status,
		Phase:     phase,
		Progress:  job.Progress,
		Message:   job.Message,
		UpdatedAt: job.UpdatedAt,
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = time.Now().UTC()
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish progress event",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}
}

// ============================================================================
// Engine hooks
// ============================================================================

// jobProgressSink persists engine progress on the job record and fans it out.
type jobProgressSink struct {
	jobID     uuid.UUID
	repo      repositories.JobRepository
	publisher queue.ProgressPublisher
	logger    *zap.Logger
}

var _ bucketing.ProgressSink = (*jobProgressSink)(nil)

// NewJobProgressSink returns a sink that moves the job to processing and
// records every progress change.
func NewJobProgressSink(jobID uuid.UUID, repo repositories.JobRepository, publisher queue.ProgressPublisher, logger *zap.Logger) bucketing.ProgressSink {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &jobProgressSink{jobID: jobID, repo: repo, publisher: publisher, logger: logger}
}

func (s *jobProgressSink) ReportProgress(ctx context.Context, phase bucketing.Phase, percent int, message string) error {
	status := models.JobStatusProcessing
	job, err := s.repo.Update(ctx, s.jobID, models.JobUpdate{
		Status:   &status,
		Progress: &percent,
		Message:  &message,
	})
	if err != nil {
		return err
	}
	publishJob(ctx, s.publisher, s.logger, job, string(phase))
	return nil
}

// NewJobCancelCheck reports whether the stored job has been cancelled.
func NewJobCancelCheck(jobID uuid.UUID, repo repositories.JobRepository) bucketing.CancelCheck {
	return func(ctx context.Context) (bool, error) {
		job, err := repo.GetByID(ctx, jobID)
		if err != nil {
			return false, err
		}
		return job.Status == models.JobStatusCancelled, nil
	}
}

// Package repositories persists workbooks, classification jobs and analysis
// results. The package-level types are PostgreSQL implementations; the
// sqlite subpackage implements the same interfaces for local runs.
package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// WorkbookRepository defines data access for uploaded workbooks.
type WorkbookRepository interface {
	Create(ctx context.Context, wb *models.Workbook) error
	// GetByID returns apperrors.ErrNotFound when the workbook does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workbook, error)
}

// JobRepository defines data access for classification jobs.
type JobRepository interface {
	Create(ctx context.Context, job *models.ClassificationJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error)
	ListByWorkbook(ctx context.Context, workbookID uuid.UUID) ([]*models.ClassificationJob, error)
	// Update applies the non-nil fields of update. A job in a terminal
	// state is never modified: apperrors.ErrJobTerminal is returned.
	Update(ctx context.Context, id uuid.UUID, update models.JobUpdate) (*models.ClassificationJob, error)
}

// AnalysisRepository defines data access for analysis results.
type AnalysisRepository interface {
	Create(ctx context.Context, result *models.AnalysisResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error)
}

// JobUpdateColumns lists the columns and values a JobUpdate touches, in a
// fixed order. updated_at is not included.
func JobUpdateColumns(u models.JobUpdate) ([]string, []any) {
	var cols []string
	var args []any
	if u.Status != nil {
		cols = append(cols, "status")
		args = append(args, string(*u.Status))
	}
	if u.Progress != nil {
		cols = append(cols, "progress")
		args = append(args, *u.Progress)
	}
	if u.Message != nil {
		cols = append(cols, "message")
		args = append(args, *u.Message)
	}
	if u.ResultID != nil {
		cols = append(cols, "result_id")
		args = append(args, *u.ResultID)
	}
	return cols, args
}

// TerminalStatuses returns the terminal job statuses as strings for SQL
// IN clauses.
func TerminalStatuses() []string {
	var out []string
	for _, s := range models.ValidJobStatuses {
		if s.IsTerminal() {
			out = append(out, string(s))
		}
	}
	return out
}

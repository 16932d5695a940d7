package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/database"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

type jobRepository struct {
	db *database.DB
}

var _ JobRepository = (*jobRepository)(nil)

// NewJobRepository creates a PostgreSQL job repository.
func NewJobRepository(db *database.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, workbook_id, selected_column, provider, status, progress, message, result_id, created_at, updated_at`

func (r *jobRepository) Create(ctx context.Context, job *models.ClassificationJob) error {
	query := `
		INSERT INTO classification_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	if _, err := r.db.Exec(ctx, query,
		job.ID, job.WorkbookID, job.SelectedColumn, string(job.Provider), string(job.Status),
		job.Progress, job.Message, job.ResultID, job.CreatedAt, job.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM classification_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) ListByWorkbook(ctx context.Context, workbookID uuid.UUID) ([]*models.ClassificationJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM classification_jobs
		WHERE workbook_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, workbookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.ClassificationJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

func (r *jobRepository) Update(ctx context.Context, id uuid.UUID, update models.JobUpdate) (*models.ClassificationJob, error) {
	cols, args := JobUpdateColumns(update)

	sets := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	args = append(args, id)
	idPos := len(args)
	args = append(args, TerminalStatuses())
	terminalPos := len(args)

	query := fmt.Sprintf(`
		UPDATE classification_jobs
		SET %s
		WHERE id = $%d AND status <> ALL($%d)
		RETURNING `+jobColumns,
		strings.Join(sets, ", "), idPos, terminalPos)

	job, err := scanJob(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either missing or already terminal.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("job %s: %w", id, apperrors.ErrJobTerminal)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*models.ClassificationJob, error) {
	var job models.ClassificationJob
	var provider, status string
	if err := row.Scan(
		&job.ID, &job.WorkbookID, &job.SelectedColumn, &provider, &status,
		&job.Progress, &job.Message, &job.ResultID, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Provider = models.AIProvider(provider)
	job.Status = models.JobStatus(status)
	return &job, nil
}

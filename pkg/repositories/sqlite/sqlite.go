// Package sqlite implements the repository interfaces on SQLite
// (modernc.org/sqlite) for single-binary local runs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/repositories"
)

// ============================================================================
// Workbooks
// ============================================================================

type workbookRepository struct {
	db *sql.DB
}

var _ repositories.WorkbookRepository = (*workbookRepository)(nil)

func NewWorkbookRepository(db *sql.DB) repositories.WorkbookRepository {
	return &workbookRepository{db: db}
}

func (r *workbookRepository) Create(ctx context.Context, wb *models.Workbook) error {
	columns, err := json.Marshal(wb.Columns)
	if err != nil {
		return fmt.Errorf("failed to marshal columns: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workbooks (id, filename, storage_path, columns, row_count, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		wb.ID.String(), wb.Filename, wb.StoragePath, string(columns), wb.RowCount, wb.UploadedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	return nil
}

func (r *workbookRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workbook, error) {
	var wb models.Workbook
	var rawID, columns string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, filename, storage_path, columns, row_count, uploaded_at
		FROM workbooks WHERE id = ?`, id.String()).
		Scan(&rawID, &wb.Filename, &wb.StoragePath, &columns, &wb.RowCount, &wb.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workbook %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workbook: %w", err)
	}
	if wb.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("invalid workbook id %q: %w", rawID, err)
	}
	if err := json.Unmarshal([]byte(columns), &wb.Columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal columns: %w", err)
	}
	return &wb, nil
}

// ============================================================================
// Jobs
// ============================================================================

type jobRepository struct {
	db *sql.DB
}

var _ repositories.JobRepository = (*jobRepository)(nil)

func NewJobRepository(db *sql.DB) repositories.JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, workbook_id, selected_column, provider, status, progress, message, result_id, created_at, updated_at`

func (r *jobRepository) Create(ctx context.Context, job *models.ClassificationJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classification_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.WorkbookID.String(), job.SelectedColumn, string(job.Provider),
		string(job.Status), job.Progress, job.Message, nullableID(job.ResultID),
		job.CreatedAt.UTC(), job.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM classification_jobs WHERE id = ?`, id.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) ListByWorkbook(ctx context.Context, workbookID uuid.UUID) ([]*models.ClassificationJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM classification_jobs
		WHERE workbook_id = ?
		ORDER BY created_at DESC`, workbookID.String())
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
	return jobs, rows.Err()
}

func (r *jobRepository) Update(ctx context.Context, id uuid.UUID, update models.JobUpdate) (*models.ClassificationJob, error) {
	cols, args := repositories.JobUpdateColumns(update)
	sets := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, col+" = ?")
		if rid, ok := args[i].(uuid.UUID); ok {
			args[i] = rid.String()
		}
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id.String())

	terminal := repositories.TerminalStatuses()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(terminal)), ", ")
	for _, s := range terminal {
		args = append(args, s)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE classification_jobs SET `+strings.Join(sets, ", ")+
			` WHERE id = ? AND status NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	job, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("job %s: %w", id, apperrors.ErrJobTerminal)
	}
	return job, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.ClassificationJob, error) {
	var job models.ClassificationJob
	var rawID, rawWorkbook, provider, status string
	var resultID sql.NullString
	if err := row.Scan(&rawID, &rawWorkbook, &job.SelectedColumn, &provider, &status,
		&job.Progress, &job.Message, &resultID, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if job.ID, err = uuid.Parse(rawID); err != nil {
		return nil, err
	}
	if job.WorkbookID, err = uuid.Parse(rawWorkbook); err != nil {
		return nil, err
	}
	if resultID.Valid {
		rid, err := uuid.Parse(resultID.String)
		if err != nil {
			return nil, err
		}
		job.ResultID = &rid
	}
	job.Provider = models.AIProvider(provider)
	job.Status = models.JobStatus(status)
	return &job, nil
}

func nullableID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// ============================================================================
// Analysis results
// ============================================================================

type analysisRepository struct {
	db *sql.DB
}

var _ repositories.AnalysisRepository = (*analysisRepository)(nil)

func NewAnalysisRepository(db *sql.DB) repositories.AnalysisRepository {
	return &analysisRepository{db: db}
}

func (r *analysisRepository) Create(ctx context.Context, result *models.AnalysisResult) error {
	buckets, stats, err := repositories.MarshalResult(result)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analysis_results (id, workbook_id, selected_column, root_buckets, stats, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		result.ID.String(), result.WorkbookID.String(), result.SelectedColumn,
		string(buckets), string(stats), result.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create analysis result: %w", err)
	}
	return nil
}

func (r *analysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	var rawID, rawWorkbook, buckets, stats string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, workbook_id, selected_column, root_buckets, stats, created_at
		FROM analysis_results WHERE id = ?`, id.String()).
		Scan(&rawID, &rawWorkbook, &result.SelectedColumn, &buckets, &stats, &result.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis result: %w", err)
	}
	if result.ID, err = uuid.Parse(rawID); err != nil {
		return nil, err
	}
	if result.WorkbookID, err = uuid.Parse(rawWorkbook); err != nil {
		return nil, err
	}
	if err := repositories.UnmarshalResult(&result, []byte(buckets), []byte(stats)); err != nil {
		return nil, err
	}
	return &result, nil
}

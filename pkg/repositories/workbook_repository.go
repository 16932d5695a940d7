package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/database"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

type workbookRepository struct {
	db *database.DB
}

var _ WorkbookRepository = (*workbookRepository)(nil)

// NewWorkbookRepository creates a PostgreSQL workbook repository.
func NewWorkbookRepository(db *database.DB) WorkbookRepository {
	return &workbookRepository{db: db}
}

func (r *workbookRepository) Create(ctx context.Context, wb *models.Workbook) error {
	columns, err := json.Marshal(wb.Columns)
	if err != nil {
		return fmt.Errorf("failed to marshal columns: %w", err)
	}

	query := `
		INSERT INTO workbooks (id, filename, storage_path, columns, row_count, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.db.Exec(ctx, query,
		wb.ID, wb.Filename, wb.StoragePath, columns, wb.RowCount, wb.UploadedAt,
	); err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	return nil
}

func (r *workbookRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workbook, error) {
	query := `
		SELECT id, filename, storage_path, columns, row_count, uploaded_at
		FROM workbooks
		WHERE id = $1`

	var wb models.Workbook
	var columns []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&wb.ID, &wb.Filename, &wb.StoragePath, &columns, &wb.RowCount, &wb.UploadedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workbook %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workbook: %w", err)
	}
	if err := json.Unmarshal(columns, &wb.Columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal columns: %w", err)
	}
	return &wb, nil
}

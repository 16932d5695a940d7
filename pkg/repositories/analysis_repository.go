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

type analysisRepository struct {
	db *database.DB
}

var _ AnalysisRepository = (*analysisRepository)(nil)

// NewAnalysisRepository creates a PostgreSQL analysis result repository.
// The bucket forest and stats are stored as JSONB documents.
func NewAnalysisRepository(db *database.DB) AnalysisRepository {
	return &analysisRepository{db: db}
}

func (r *analysisRepository) Create(ctx context.Context, result *models.AnalysisResult) error {
	buckets, stats, err := MarshalResult(result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO analysis_results (id, workbook_id, selected_column, root_buckets, stats, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.db.Exec(ctx, query,
		result.ID, result.WorkbookID, result.SelectedColumn, buckets, stats, result.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create analysis result: %w", err)
	}
	return nil
}

func (r *analysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error) {
	query := `
		SELECT id, workbook_id, selected_column, root_buckets, stats, created_at
		FROM analysis_results
		WHERE id = $1`

	var result models.AnalysisResult
	var buckets, stats []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&result.ID, &result.WorkbookID, &result.SelectedColumn, &buckets, &stats, &result.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis result: %w", err)
	}
	if err := UnmarshalResult(&result, buckets, stats); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarshalResult encodes the JSON columns of an analysis result.
func MarshalResult(result *models.AnalysisResult) (buckets, stats []byte, err error) {
	roots := result.RootBuckets
	if roots == nil {
		roots = []*models.BucketNode{}
	}
	if buckets, err = json.Marshal(roots); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal buckets: %w", err)
	}
	if stats, err = json.Marshal(result.Stats); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal stats: %w", err)
	}
	return buckets, stats, nil
}

// UnmarshalResult decodes the JSON columns into result.
func UnmarshalResult(result *models.AnalysisResult, buckets, stats []byte) error {
	if err := json.Unmarshal(buckets, &result.RootBuckets); err != nil {
		return fmt.Errorf("failed to unmarshal buckets: %w", err)
	}
	if err := json.Unmarshal(stats, &result.Stats); err != nil {
		return fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return nil
}

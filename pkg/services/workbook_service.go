package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/adapters/filestore"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/config"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/csvstream"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/repositories"
)

// SampleResult is the most frequent values of a column near the top of a file.
type SampleResult struct {
	Column      string              `json:"column"`
	Values      []models.ValueCount `json:"values"`
	RowsScanned int                 `json:"rowsScanned"`
	EmptyCount  int                 `json:"emptyCount"`
}

// WorkbookService manages uploaded files.
type WorkbookService interface {
	// Upload stores the file, scans its header and row count and records it.
	Upload(ctx context.Context, filename string, r io.Reader) (*models.Workbook, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Workbook, error)
	// Sample returns the top values of column within the first rows.
	Sample(ctx context.Context, id uuid.UUID, column string) (*SampleResult, error)
	// Open returns a fresh record stream over the stored file.
	Open(ctx context.Context, wb *models.Workbook) (*csvstream.Reader, error)
}

type workbookService struct {
	repo   repositories.WorkbookRepository
	store  filestore.FileStore
	cfg    config.ClassificationConfig
	logger *zap.Logger
}

var _ WorkbookService = (*workbookService)(nil)

func NewWorkbookService(repo repositories.WorkbookRepository, store filestore.FileStore, cfg config.ClassificationConfig, logger *zap.Logger) WorkbookService {
	return &workbookService{
		repo:   repo,
		store:  store,
		cfg:    cfg,
		logger: logger.Named("workbook-service"),
	}
}

func (s *workbookService) Upload(ctx context.Context, filename string, r io.Reader) (*models.Workbook, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: file name is required", apperrors.ErrInvalidInput)
	}

	wb := &models.Workbook{
		ID:         uuid.New(),
		Filename:   name,
		UploadedAt: time.Now().UTC(),
	}
	wb.StoragePath = "workbooks/" + wb.ID.String() + ".csv"

	if err := s.store.Put(ctx, wb.StoragePath, r); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	md, err := s.scan(ctx, wb)
	if err != nil {
		s.discard(ctx, wb.StoragePath)
		return nil, err
	}
	wb.Columns = md.Columns
	wb.RowCount = md.RowCount

	if err := s.repo.Create(ctx, wb); err != nil {
		s.discard(ctx, wb.StoragePath)
		return nil, err
	}

	s.logger.Info("Workbook uploaded",
		zap.String("workbook_id", wb.ID.String()),
		zap.String("filename", wb.Filename),
		zap.Int("columns", len(wb.Columns)),
		zap.Int("rows", wb.RowCount))
	return wb, nil
}

func (s *workbookService) scan(ctx context.Context, wb *models.Workbook) (*csvstream.Metadata, error) {
	reader, err := s.Open(ctx, wb)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	defer reader.Close()

	md, err := csvstream.ScanMetadata(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed file: %w", apperrors.ErrInvalidInput, err)
	}
	if len(md.Columns) == 0 {
		return nil, fmt.Errorf("%w: file has no columns", apperrors.ErrInvalidInput)
	}
	return md, nil
}

func (s *workbookService) discard(ctx context.Context, key string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("Failed to remove rejected upload", zap.String("key", key), zap.Error(err))
	}
}

func (s *workbookService) Get(ctx context.Context, id uuid.UUID) (*models.Workbook, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *workbookService) Sample(ctx context.Context, id uuid.UUID, column string) (*SampleResult, error) {
	wb, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !wb.HasColumn(column) {
		return nil, fmt.Errorf("%w: column %q not found", apperrors.ErrInvalidInput, column)
	}

	reader, err := s.Open(ctx, wb)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	stats, err := csvstream.UniqueValues(reader, column, s.cfg.SampleRows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	return &SampleResult{
		Column:      column,
		Values:      csvstream.TopValues(stats.Values, s.cfg.SampleTop),
		RowsScanned: stats.TotalRows,
		EmptyCount:  stats.EmptyCount,
	}, nil
}

func (s *workbookService) Open(ctx context.Context, wb *models.Workbook) (*csvstream.Reader, error) {
	rc, err := s.store.Open(ctx, wb.StoragePath)
	if err != nil {
		return nil, err
	}
	reader, err := csvstream.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return reader, nil
}

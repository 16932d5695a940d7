package handlers

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/csvstream"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

// ============================================================================
// Mock Implementations
// ============================================================================

type mockWorkbookService struct {
	UploadFunc func(ctx context.Context, filename string, r io.Reader) (*models.Workbook, error)
	GetFunc    func(ctx context.Context, id uuid.UUID) (*models.Workbook, error)
	SampleFunc func(ctx context.Context, id uuid.UUID, column string) (*services.SampleResult, error)
}

var _ services.WorkbookService = (*mockWorkbookService)(nil)

func (m *mockWorkbookService) Upload(ctx context.Context, filename string, r io.Reader) (*models.Workbook, error) {
	return m.UploadFunc(ctx, filename, r)
}

func (m *mockWorkbookService) Get(ctx context.Context, id uuid.UUID) (*models.Workbook, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockWorkbookService) Sample(ctx context.Context, id uuid.UUID, column string) (*services.SampleResult, error) {
	return m.SampleFunc(ctx, id, column)
}

func (m *mockWorkbookService) Open(context.Context, *models.Workbook) (*csvstream.Reader, error) {
	return nil, io.ErrUnexpectedEOF
}

type mockAnalysisService struct {
	ProposeFunc    func(ctx context.Context, in services.ProposeInput) (*models.TaxonomyProposal, error)
	FinalizeFunc   func(ctx context.Context, in services.FinalizeInput) (*models.ClassificationJob, error)
	GetResultFunc  func(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error)
	BucketRowsFunc func(ctx context.Context, workbookID, analysisID uuid.UUID, bucketID string) (*services.BucketRows, error)
}

var _ services.AnalysisService = (*mockAnalysisService)(nil)

func (m *mockAnalysisService) Propose(ctx context.Context, in services.ProposeInput) (*models.TaxonomyProposal, error) {
	return m.ProposeFunc(ctx, in)
}

func (m *mockAnalysisService) Finalize(ctx context.Context, in services.FinalizeInput) (*models.ClassificationJob, error) {
	return m.FinalizeFunc(ctx, in)
}

func (m *mockAnalysisService) GetResult(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error) {
	return m.GetResultFunc(ctx, id)
}

func (m *mockAnalysisService) BucketRows(ctx context.Context, workbookID, analysisID uuid.UUID, bucketID string) (*services.BucketRows, error) {
	return m.BucketRowsFunc(ctx, workbookID, analysisID, bucketID)
}

type mockJobService struct {
	GetFunc            func(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error)
	ListByWorkbookFunc func(ctx context.Context, workbookID uuid.UUID) ([]*models.ClassificationJob, error)
	CancelFunc         func(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error)
}

var _ services.JobService = (*mockJobService)(nil)

func (m *mockJobService) Get(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockJobService) ListByWorkbook(ctx context.Context, workbookID uuid.UUID) ([]*models.ClassificationJob, error) {
	return m.ListByWorkbookFunc(ctx, workbookID)
}

func (m *mockJobService) Cancel(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error) {
	return m.CancelFunc(ctx, id)
}

package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/adapters/filestore"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/config"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/database"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/llm"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/queue"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/repositories"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/repositories/sqlite"
)

const companiesCSV = "Name,Industry\n" +
	"Acme,Real Estate\n" +
	"Bolt,Farming\n" +
	"Coda,\n" +
	"Dune,Real Estate\n" +
	"Echo,Condo\n"

// ============================================================================
// Mock Classifier
// ============================================================================

type mockClassifier struct {
	MapBatchFunc        func(ctx context.Context, column string, values []string, taxonomy []models.TaxonomyNode) (*models.BatchMapping, error)
	ProposeTaxonomyFunc func(ctx context.Context, column string, samples []models.ValueCount, guide []models.TaxonomyNode) ([]models.TaxonomyNode, error)
}

func (m *mockClassifier) MapBatch(ctx context.Context, column string, values []string, taxonomy []models.TaxonomyNode) (*models.BatchMapping, error) {
	if m.MapBatchFunc != nil {
		return m.MapBatchFunc(ctx, column, values, taxonomy)
	}
	return &models.BatchMapping{Mappings: []models.ValueMapping{}}, nil
}

func (m *mockClassifier) ProposeTaxonomy(ctx context.Context, column string, samples []models.ValueCount, guide []models.TaxonomyNode) ([]models.TaxonomyNode, error) {
	if m.ProposeTaxonomyFunc != nil {
		return m.ProposeTaxonomyFunc(ctx, column, samples, guide)
	}
	return []models.TaxonomyNode{{Name: "Other"}}, nil
}

type mockClassifierProvider struct {
	ClassifierFunc func(ctx context.Context, provider models.AIProvider) (Classifier, error)
}

func (m *mockClassifierProvider) Classifier(ctx context.Context, provider models.AIProvider) (Classifier, error) {
	if provider == models.AIProviderNone {
		return nil, llm.ErrNoProvider
	}
	return m.ClassifierFunc(ctx, provider)
}

func providerFor(c Classifier) *mockClassifierProvider {
	return &mockClassifierProvider{
		ClassifierFunc: func(context.Context, models.AIProvider) (Classifier, error) { return c, nil },
	}
}

// mappingFor maps every value of the batch found in paths.
func mappingFor(paths map[string][]string) func(context.Context, string, []string, []models.TaxonomyNode) (*models.BatchMapping, error) {
	return func(_ context.Context, _ string, values []string, _ []models.TaxonomyNode) (*models.BatchMapping, error) {
		out := &models.BatchMapping{Mappings: []models.ValueMapping{}}
		for _, v := range values {
			if p, ok := paths[v]; ok {
				out.Mappings = append(out.Mappings, models.ValueMapping{Value: v, Path: p})
			}
		}
		return out, nil
	}
}

// ============================================================================
// Mock Job Queue and Publisher
// ============================================================================

type mockJobQueue struct {
	EnqueueFunc func(ctx context.Context, req *models.ClassificationRequest) error
}

func (m *mockJobQueue) Enqueue(ctx context.Context, req *models.ClassificationRequest) error {
	return m.EnqueueFunc(ctx, req)
}

func (m *mockJobQueue) Dequeue(ctx context.Context) (*models.ClassificationRequest, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *mockJobQueue) Close() error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e models.ProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Events() []models.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ProgressEvent(nil), p.events...)
}

func (p *recordingPublisher) Last() models.ProgressEvent {
	events := p.Events()
	if len(events) == 0 {
		return models.ProgressEvent{}
	}
	return events[len(events)-1]
}

// ============================================================================
// Test Environment
// ============================================================================

// testEnv wires the services on an in-memory SQLite database, a temp-dir
// file store and an in-process queue.
type testEnv struct {
	cfg       config.ClassificationConfig
	workbooks repositories.WorkbookRepository
	jobs      repositories.JobRepository
	results   repositories.AnalysisRepository
	store     filestore.FileStore
	queue     *queue.MemoryQueue
	publisher *recordingPublisher
	wbService WorkbookService
}

func testClassificationConfig() config.ClassificationConfig {
	return config.ClassificationConfig{
		BatchSize:         50,
		MaxAttempts:       2,
		RetryDelay:        time.Millisecond,
		ProgressStride:    2,
		UniqueValueLimit:  200000,
		SampleRows:        1000,
		SampleTop:         25,
		ProposalSamples:   500,
		BucketRowsLimit:   50,
		WorkerConcurrency: 2,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.RunMigrations(db, database.DialectSQLite, zap.NewNop()))

	store, err := filestore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		cfg:       testClassificationConfig(),
		workbooks: sqlite.NewWorkbookRepository(db),
		jobs:      sqlite.NewJobRepository(db),
		results:   sqlite.NewAnalysisRepository(db),
		store:     store,
		queue:     queue.NewMemoryQueue(16),
		publisher: &recordingPublisher{},
	}
	env.wbService = NewWorkbookService(env.workbooks, env.store, env.cfg, zap.NewNop())
	return env
}

func (e *testEnv) upload(t *testing.T, content string) *models.Workbook {
	t.Helper()
	wb, err := e.wbService.Upload(context.Background(), "companies.csv", strings.NewReader(content))
	require.NoError(t, err)
	return wb
}

func (e *testEnv) analysisService(classifiers ClassifierProvider, jq queue.JobQueue) AnalysisService {
	if jq == nil {
		jq = e.queue
	}
	return NewAnalysisService(e.wbService, e.jobs, e.results, classifiers, jq, e.cfg, zap.NewNop())
}

func (e *testEnv) runner(classifiers ClassifierProvider) *ClassificationRunner {
	return NewClassificationRunner(e.wbService, e.jobs, e.results, classifiers, e.publisher, e.cfg, zap.NewNop())
}

func (e *testEnv) queuedJob(t *testing.T, wb *models.Workbook, provider models.AIProvider) *models.ClassificationJob {
	t.Helper()
	now := time.Now().UTC()
	job := &models.ClassificationJob{
		ID:             uuid.New(),
		WorkbookID:     wb.ID,
		SelectedColumn: "Industry",
		Provider:       provider,
		Status:         models.JobStatusQueued,
		Message:        QueuedMessage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, e.jobs.Create(context.Background(), job))
	return job
}

func rootByName(roots []*models.BucketNode, name string) *models.BucketNode {
	for _, r := range roots {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func sumRoots(roots []*models.BucketNode) int {
	total := 0
	for _, r := range roots {
		total += r.RowCount
	}
	return total
}

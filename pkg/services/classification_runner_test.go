package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/llm"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

func requestFor(job *models.ClassificationJob, taxonomy []models.TaxonomyNode) *models.ClassificationRequest {
	return &models.ClassificationRequest{
		JobID:             job.ID,
		WorkbookID:        job.WorkbookID,
		SelectedColumn:    job.SelectedColumn,
		ConfirmedTaxonomy: taxonomy,
		UniqueValues:      map[string]int{"Real Estate": 2, "Farming": 1, "Condo": 1},
		Provider:          job.Provider,
	}
}

func TestClassificationRunner_Completes(t *testing.T) {
	env := newTestEnv(t)
	wb := env.upload(t, companiesCSV)
	job := env.queuedJob(t, wb, models.AIProviderOpenAI)
	ctx := context.Background()

	classifier := &mockClassifier{MapBatchFunc: mappingFor(map[string][]string{
		"Real Estate": {"Property", "Residential"},
		"Condo":       {"Property", "Residential"},
		"Farming":     {"Agriculture"},
	})}
	runner := env.runner(providerFor(classifier))

	taxonomy := []models.TaxonomyNode{{Name: "Property"}, {Name: "Agriculture"}}
	require.NoError(t, runner.Run(ctx, requestFor(job, taxonomy)))

	stored, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, CompletedMessage, stored.Message)
	require.NotNil(t, stored.ResultID)

	result, err := env.results.GetByID(ctx, *stored.ResultID)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Stats.TotalRows)
	assert.Equal(t, 1, result.Stats.EmptyCount)
	assert.Equal(t, 5, sumRoots(result.RootBuckets))

	property := rootByName(result.RootBuckets, "Property")
	require.NotNil(t, property)
	assert.Equal(t, 3, property.RowCount)
	require.Len(t, property.Children, 1)
	assert.Equal(t, "Residential", property.Children[0].Name)
	assert.Equal(t, []int{0, 3, 4}, property.Children[0].RowIndices)

	last := env.publisher.Last()
	assert.Equal(t, models.JobStatusCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)

	var sawProcessing bool
	prev := -1
	for _, e := range env.publisher.Events() {
		if e.Status == models.JobStatusProcessing {
			sawProcessing = true
		}
		assert.GreaterOrEqual(t, e.Progress, prev)
		prev = e.Progress
	}
	assert.True(t, sawProcessing)
}

func TestClassificationRunner_ClassifierFailuresAreAbsorbed(t *testing.T) {
	env := newTestEnv(t)
	wb := env.upload(t, companiesCSV)
	job := env.queuedJob(t, wb, models.AIProviderOpenAI)
	ctx := context.Background()

	classifier := &mockClassifier{
		MapBatchFunc: func(context.Context, string, []string, []models.TaxonomyNode) (*models.BatchMapping, error) {
			return nil, llm.ClassifyError(errors.New("503 service unavailable"))
		},
	}
	runner := env.runner(providerFor(classifier))

	require.NoError(t, runner.Run(ctx, requestFor(job, []models.TaxonomyNode{{Name: "Real Estate"}})))

	stored, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)

	result, err := env.results.GetByID(ctx, *stored.ResultID)
	require.NoError(t, err)
	assert.Equal(t, 5, sumRoots(result.RootBuckets))
	// Fuzzy matching still finds the root named after the value.
	assert.Equal(t, 2, rootByName(result.RootBuckets, "Real Estate").RowCount)
}

func TestClassificationRunner_NoProviderWithoutTaxonomyUsesFlatTree(t *testing.T) {
	env := newTestEnv(t)
	wb := env.upload(t, companiesCSV)
	job := env.queuedJob(t, wb, models.AIProviderNone)
	ctx := context.Background()

	req := requestFor(job, nil)
	req.UniqueValues = nil
	require.NoError(t, env.runner(&mockClassifierProvider{}).Run(ctx, req))

	stored, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, stored.Status)

	result, err := env.results.GetByID(ctx, *stored.ResultID)
	require.NoError(t, err)
	assert.Len(t, result.RootBuckets, 4)
	assert.Equal(t, 3, result.Stats.UniqueValues)
}

func TestClassificationRunner_CancelledMidRun(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.BatchSize = 1
	wb := env.upload(t, companiesCSV)
	job := env.queuedJob(t, wb, models.AIProviderOpenAI)
	ctx := context.Background()
	jobs := NewJobService(env.jobs, nil, nil, zap.NewNop())

	calls := 0
	classifier := &mockClassifier{
		MapBatchFunc: func(ctx context.Context, _ string, values []string, _ []models.TaxonomyNode) (*models.BatchMapping, error) {
			calls++
			_, err := jobs.Cancel(ctx, job.ID)
			require.NoError(t, err)
			return &models.BatchMapping{Mappings: []models.ValueMapping{}}, nil
		},
	}

	err := env.runner(providerFor(classifier)).Run(ctx, requestFor(job, []models.TaxonomyNode{{Name: "Property"}}))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)

	stored, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)
	assert.Nil(t, stored.ResultID)
}

func TestClassificationRunner_SkipsTerminalJob(t *testing.T) {
	env := newTestEnv(t)
	wb := env.upload(t, companiesCSV)
	job := env.queuedJob(t, wb, models.AIProviderOpenAI)
	ctx := context.Background()

	_, err := NewJobService(env.jobs, nil, nil, zap.NewNop()).Cancel(ctx, job.ID)
	require.NoError(t, err)

	classifier := &mockClassifier{
		MapBatchFunc: func(context.Context, string, []string, []models.TaxonomyNode) (*models.BatchMapping, error) {
			t.Fatal("classifier must not be called for a cancelled job")
			return nil, nil
		},
	}
	require.NoError(t, env.runner(providerFor(classifier)).Run(ctx, requestFor(job, []models.TaxonomyNode{{Name: "X"}})))
}

func TestClassificationRunner_FailsOnMissingFile(t *testing.T) {
	env := newTestEnv(t)
	wb := env.upload(t, companiesCSV)
	job := env.queuedJob(t, wb, models.AIProviderOpenAI)
	ctx := context.Background()
	require.NoError(t, env.store.Delete(ctx, wb.StoragePath))

	err := env.runner(providerFor(&mockClassifier{})).Run(ctx, requestFor(job, []models.TaxonomyNode{{Name: "Property"}}))
	require.Error(t, err)

	stored, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.Message, "Analysis failed")
	assert.Equal(t, models.JobStatusFailed, env.publisher.Last().Status)
}

func TestClassificationRunner_FailsOnUnconfiguredProvider(t *testing.T) {
	env := newTestEnv(t)
	wb := env.upload(t, companiesCSV)
	job := env.queuedJob(t, wb, models.AIProviderGemini)
	ctx := context.Background()
	provider := &mockClassifierProvider{
		ClassifierFunc: func(context.Context, models.AIProvider) (Classifier, error) {
			return nil, llm.ErrProviderNotConfigured
		},
	}

	err := env.runner(provider).Run(ctx, requestFor(job, []models.TaxonomyNode{{Name: "Property"}}))
	require.Error(t, err)

	stored, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
}

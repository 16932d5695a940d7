package bucketing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

func fastMapperConfig() MapperConfig {
	return MapperConfig{BatchSize: 50, MaxAttempts: 3, RetryDelay: 0}
}

func TestMapper_CreatesNewPathAndExactEntry(t *testing.T) {
	tree := BuildTree(financeTaxonomy())
	banking := tree.Roots[1].Children[0]
	before := banking.ChildrenCount
	exact := make(ExactMap)

	classifier := &mockBatchClassifier{
		MapBatchFunc: func(_ context.Context, _ string, _ []string, _ []models.TaxonomyNode) (*models.BatchMapping, error) {
			return &models.BatchMapping{Mappings: []models.ValueMapping{
				{Value: "Acme Corp", Path: []string{"Finance", "Banking", "Retail"}},
			}}, nil
		},
	}
	m := NewMapper(tree, exact, classifier, fastMapperConfig(), nil, nil, zap.NewNop())

	summary, err := m.Map(context.Background(), "company", []string{"Acme Corp"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Batches)
	assert.Equal(t, 1, summary.MappedValues)
	assert.Equal(t, 1, summary.CreatedNodes)
	assert.Equal(t, before+1, banking.ChildrenCount)

	retail := banking.Children[len(banking.Children)-1]
	assert.Equal(t, "Retail", retail.Name)
	assert.Equal(t, 2, retail.Depth)

	res := NewClassifier(tree, exact).Resolve("Acme Corp")
	assert.Equal(t, SourceExact, res.Source)
	assert.Same(t, retail, res.Target())
	assert.NoError(t, tree.Validate())
}

func TestMapper_FailTwiceThenSucceed(t *testing.T) {
	tree := BuildTree(financeTaxonomy())
	exact := make(ExactMap)
	attempts := 0
	classifier := &mockBatchClassifier{
		MapBatchFunc: func(_ context.Context, _ string, _ []string, _ []models.TaxonomyNode) (*models.BatchMapping, error) {
			attempts++
			switch attempts {
			case 1:
				return nil, errors.New("503 service unavailable")
			case 2:
				// Structurally invalid: mappings missing.
				return &models.BatchMapping{}, nil
			}
			return &models.BatchMapping{Mappings: []models.ValueMapping{
				{Value: "Acme Corp", Path: []string{"Finance", "Banking", "Retail"}},
			}}, nil
		},
	}
	m := NewMapper(tree, exact, classifier, fastMapperConfig(), nil, nil, zap.NewNop())

	summary, err := m.Map(context.Background(), "company", []string{"Acme Corp"})
	require.NoError(t, err)

	assert.Equal(t, 3, attempts)
	assert.Zero(t, summary.FailedBatches)
	assert.Equal(t, 1, summary.CreatedNodes)

	count := 0
	tree.Walk(func(n *models.BucketNode, _ []*models.BucketNode) bool {
		if n.Name == "Retail" {
			count++
		}
		return true
	})
	assert.Equal(t, 1, count)
	assert.Equal(t, "Retail", exact["Acme Corp"][2].Name)
	assert.NoError(t, tree.Validate())
}

func TestMapper_ExhaustedBatchIsSkipped(t *testing.T) {
	tree := BuildTree(financeTaxonomy())
	exact := make(ExactMap)
	classifier := &mockBatchClassifier{
		MapBatchFunc: func(_ context.Context, _ string, values []string, _ []models.TaxonomyNode) (*models.BatchMapping, error) {
			if values[0] == "v0" {
				return nil, errors.New("model unavailable")
			}
			out := &models.BatchMapping{Mappings: []models.ValueMapping{}}
			for _, v := range values {
				out.Mappings = append(out.Mappings, models.ValueMapping{Value: v, Path: []string{"Finance"}})
			}
			return out, nil
		},
	}
	cfg := fastMapperConfig()
	cfg.BatchSize = 2
	m := NewMapper(tree, exact, classifier, cfg, nil, nil, zap.NewNop())

	summary, err := m.Map(context.Background(), "c", []string{"v0", "v1", "v2", "v3"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Batches)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, 2, summary.MappedValues)
	assert.Len(t, classifier.calls, 4) // 3 attempts + 1 success
	assert.NotContains(t, exact, "v0")
	assert.NotContains(t, exact, "v1")
	assert.Contains(t, exact, "v2")
}

func TestMapper_BatchesSequentialAndSeeEarlierNodes(t *testing.T) {
	tree := NewTree()
	exact := make(ExactMap)
	var taxonomies [][]models.TaxonomyNode
	classifier := &mockBatchClassifier{
		MapBatchFunc: func(_ context.Context, _ string, values []string, taxonomy []models.TaxonomyNode) (*models.BatchMapping, error) {
			taxonomies = append(taxonomies, taxonomy)
			return &models.BatchMapping{Mappings: []models.ValueMapping{
				{Value: values[0], Path: []string{"Group " + values[0]}},
			}}, nil
		},
	}
	cfg := fastMapperConfig()
	cfg.BatchSize = 1
	m := NewMapper(tree, exact, classifier, cfg, nil, nil, zap.NewNop())

	_, err := m.Map(context.Background(), "c", []string{"a", "b"})
	require.NoError(t, err)

	require.Len(t, taxonomies, 2)
	assert.Empty(t, taxonomies[0])
	assert.Equal(t, []models.TaxonomyNode{{Name: "Group a"}}, taxonomies[1])
	assert.Equal(t, [][]string{{"a"}, {"b"}}, classifier.calls)
}

func TestMapper_IgnoresForeignAndEmptyMappings(t *testing.T) {
	tree := NewTree()
	exact := make(ExactMap)
	classifier := &mockBatchClassifier{
		MapBatchFunc: func(context.Context, string, []string, []models.TaxonomyNode) (*models.BatchMapping, error) {
			return &models.BatchMapping{Mappings: []models.ValueMapping{
				{Value: "stranger", Path: []string{"Elsewhere"}},
				{Value: "known", Path: []string{}},
				{Value: "known", Path: nil},
			}}, nil
		},
	}
	m := NewMapper(tree, exact, classifier, fastMapperConfig(), nil, nil, zap.NewNop())

	summary, err := m.Map(context.Background(), "c", []string{"known", "dropped"})
	require.NoError(t, err)

	assert.Zero(t, summary.MappedValues)
	assert.Empty(t, exact)
	assert.Len(t, tree.Roots, 1)
}

func TestMapper_CancelledAtBatchBoundary(t *testing.T) {
	tree := NewTree()
	classifier := &mockBatchClassifier{}
	cancelAfter := 1
	checks := 0
	cancelled := func(context.Context) (bool, error) {
		checks++
		return checks > cancelAfter, nil
	}
	cfg := fastMapperConfig()
	cfg.BatchSize = 1
	m := NewMapper(tree, make(ExactMap), classifier, cfg, nil, cancelled, zap.NewNop())

	summary, err := m.Map(context.Background(), "c", []string{"a", "b", "c"})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, summary.Batches)
	assert.Len(t, classifier.calls, 1)
}

func TestMapper_CancelCheckErrorIsNotFatal(t *testing.T) {
	classifier := &mockBatchClassifier{}
	cancelled := func(context.Context) (bool, error) {
		return false, fmt.Errorf("job store down")
	}
	m := NewMapper(NewTree(), make(ExactMap), classifier, fastMapperConfig(), nil, cancelled, zap.NewNop())

	_, err := m.Map(context.Background(), "c", []string{"a"})

	assert.NoError(t, err)
	assert.Len(t, classifier.calls, 1)
}

func TestMapper_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	classifier := &mockBatchClassifier{}
	m := NewMapper(NewTree(), make(ExactMap), classifier, fastMapperConfig(), nil, nil, zap.NewNop())

	_, err := m.Map(ctx, "c", []string{"a"})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, classifier.calls)
}

func TestMapper_ReportsBatchProgress(t *testing.T) {
	sink := &recordingSink{}
	tracker := NewTracker(sink, zap.NewNop())
	cfg := fastMapperConfig()
	cfg.BatchSize = 1
	m := NewMapper(NewTree(), make(ExactMap), &mockBatchClassifier{}, cfg, tracker, nil, zap.NewNop())

	_, err := m.Map(context.Background(), "c", []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, []int{32, 55}, sink.percents())
	assert.Equal(t, PhaseBatchClassification, sink.updates[0].phase)
}

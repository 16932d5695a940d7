package bucketing

import (
	"context"
	"io"
	"sync"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// sliceStream is an in-memory RecordStream.
type sliceStream struct {
	header  []string
	records []map[string]string
	pos     int
	failAt  int // row index returning failErr, -1 disables
	failErr error
}

func newSliceStream(column string, values ...string) *sliceStream {
	s := &sliceStream{header: []string{"id", column}, failAt: -1}
	for _, v := range values {
		s.records = append(s.records, map[string]string{"id": "x", column: v})
	}
	return s
}

func (s *sliceStream) Header() []string { return s.header }

func (s *sliceStream) Next() (map[string]string, error) {
	if s.failAt >= 0 && s.pos == s.failAt {
		return nil, s.failErr
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

// mockBatchClassifier records calls and delegates to MapBatchFunc.
type mockBatchClassifier struct {
	MapBatchFunc func(ctx context.Context, column string, values []string, taxonomy []models.TaxonomyNode) (*models.BatchMapping, error)

	mu    sync.Mutex
	calls [][]string
}

func (m *mockBatchClassifier) MapBatch(ctx context.Context, column string, values []string, taxonomy []models.TaxonomyNode) (*models.BatchMapping, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), values...))
	m.mu.Unlock()
	if m.MapBatchFunc != nil {
		return m.MapBatchFunc(ctx, column, values, taxonomy)
	}
	return &models.BatchMapping{Mappings: []models.ValueMapping{}}, nil
}

type progressUpdate struct {
	phase   Phase
	percent int
	message string
}

type recordingSink struct {
	mu      sync.Mutex
	updates []progressUpdate
	err     error
}

func (s *recordingSink) ReportProgress(_ context.Context, phase Phase, percent int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, progressUpdate{phase, percent, message})
	return s.err
}

func (s *recordingSink) percents() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.updates))
	for i, u := range s.updates {
		out[i] = u.percent
	}
	return out
}

func financeTaxonomy() []models.TaxonomyNode {
	return []models.TaxonomyNode{
		{Name: "Finance", Children: []models.TaxonomyNode{{Name: "Banking"}}},
	}
}

func names(path []*models.BucketNode) []string {
	out := make([]string, len(path))
	for i, n := range path {
		out[i] = n.Name
	}
	return out
}

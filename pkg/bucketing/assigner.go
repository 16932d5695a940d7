package bucketing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// RecordStream is a forward-only stream of records keyed by header field.
// Next returns io.EOF after the last record.
type RecordStream interface {
	Header() []string
	Next() (map[string]string, error)
}

// DefaultProgressStride is the number of rows between progress checkpoints.
const DefaultProgressStride = 5000

// AssignStats summarises one streaming pass.
type AssignStats struct {
	TotalRows    int
	EmptyRows    int
	CatchAllRows int
	ExactHits    int
	FuzzyHits    int
}

// Assigner assigns every record of a stream to a bucket.
type Assigner struct {
	classifier *Classifier
	tree       *Tree
	stride     int
	tracker    *Tracker
	cancelled  CancelCheck
	logger     *zap.Logger
}

// NewAssigner creates an assigner. tracker and cancelled may be nil.
func NewAssigner(tree *Tree, classifier *Classifier, stride int, tracker *Tracker, cancelled CancelCheck, logger *zap.Logger) *Assigner {
	if stride <= 0 {
		stride = DefaultProgressStride
	}
	return &Assigner{
		classifier: classifier,
		tree:       tree,
		stride:     stride,
		tracker:    tracker,
		cancelled:  cancelled,
		logger:     logger.Named("stream-assigner"),
	}
}

// Assign streams every record once. expectedRows drives progress reporting
// and may be zero when unknown.
func (a *Assigner) Assign(ctx context.Context, stream RecordStream, column string, expectedRows int) (*AssignStats, error) {
	if !hasField(stream.Header(), column) {
		return nil, fmt.Errorf("%w: column %q not found in file header", ErrInputInvalid, column)
	}

	a.classifier.Freeze()
	catchAll := a.tree.CatchAll()
	stats := &AssignStats{}

	for row := 0; ; row++ {
		rec, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("%w at row %d: %w", ErrStreamFailed, row, err)
		}
		stats.TotalRows++

		value := strings.TrimSpace(rec[column])
		if value == "" {
			stats.EmptyRows++
			assignCatchAll(catchAll, row)
		} else {
			res := a.classifier.Resolve(value)
			target := res.Target()
			if target == nil || target == catchAll {
				stats.CatchAllRows++
				assignCatchAll(catchAll, row)
			} else {
				for _, n := range res.Path {
					n.RowCount++
				}
				target.RowIndices = append(target.RowIndices, row)
				switch res.Source {
				case SourceExact:
					stats.ExactHits++
				case SourceFuzzy:
					stats.FuzzyHits++
				}
			}
		}

		if stats.TotalRows%a.stride == 0 {
			if err := checkCancelled(ctx, a.cancelled, a.logger); err != nil {
				return stats, err
			}
			a.reportProgress(ctx, stats.TotalRows, expectedRows)
		}
	}

	a.reportProgress(ctx, stats.TotalRows, stats.TotalRows)
	a.logger.Info("Streaming assignment finished",
		zap.String("column", column),
		zap.Int("total_rows", stats.TotalRows),
		zap.Int("empty_rows", stats.EmptyRows),
		zap.Int("catch_all_rows", stats.CatchAllRows),
		zap.Int("exact_hits", stats.ExactHits),
		zap.Int("fuzzy_hits", stats.FuzzyHits))
	return stats, nil
}

func (a *Assigner) reportProgress(ctx context.Context, rows, expected int) {
	if a.tracker == nil {
		return
	}
	fraction := 0.0
	if expected > 0 {
		fraction = float64(rows) / float64(expected)
	}
	a.tracker.Report(ctx, PhaseStreamingAssignment, fraction, fmt.Sprintf("Assigned %d rows", rows))
}

func assignCatchAll(catchAll *models.BucketNode, row int) {
	catchAll.RowIndices = append(catchAll.RowIndices, row)
	catchAll.RowCount++
}

func hasField(header []string, column string) bool {
	for _, h := range header {
		if h == column {
			return true
		}
	}
	return false
}

package bucketing

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"
)

// Phase is a stage of a classification job with a fixed progress range.
type Phase string

const (
	PhaseInitialization      Phase = "initialization"
	PhaseBatchClassification Phase = "batch_classification"
	PhaseStreamingAssignment Phase = "streaming_assignment"
	PhaseFinalize            Phase = "finalize"
)

type phaseRange struct{ lo, hi int }

var phaseRanges = map[Phase]phaseRange{
	PhaseInitialization:      {0, 10},
	PhaseBatchClassification: {10, 55},
	PhaseStreamingAssignment: {55, 95},
	PhaseFinalize:            {95, 100},
}

// Percent maps a fraction of work within a phase onto the job's 0-100 scale.
func Percent(phase Phase, fraction float64) int {
	r, ok := phaseRanges[phase]
	if !ok {
		return 0
	}
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return r.lo + int(math.Floor(fraction*float64(r.hi-r.lo)))
}

// ProgressSink receives progress updates for one job.
type ProgressSink interface {
	ReportProgress(ctx context.Context, phase Phase, percent int, message string) error
}

// Tracker is the single owner of a job's progress value. Reported progress
// never decreases.
type Tracker struct {
	sink   ProgressSink
	logger *zap.Logger

	mu      sync.Mutex
	percent int
	message string
}

// NewTracker creates a tracker. sink may be nil.
func NewTracker(sink ProgressSink, logger *zap.Logger) *Tracker {
	return &Tracker{sink: sink, logger: logger, percent: -1}
}

// Report publishes progress for phase. Sink failures are logged and dropped.
func (t *Tracker) Report(ctx context.Context, phase Phase, fraction float64, message string) {
	t.mu.Lock()
	p := Percent(phase, fraction)
	if p < t.percent {
		p = t.percent
	}
	if p == t.percent && message == t.message {
		t.mu.Unlock()
		return
	}
	t.percent = p
	t.message = message
	t.mu.Unlock()

	if t.sink == nil {
		return
	}
	if err := t.sink.ReportProgress(ctx, phase, p, message); err != nil {
		t.logger.Warn("Failed to report progress",
			zap.String("phase", string(phase)),
			zap.Int("progress", p),
			zap.Error(err))
	}
}

// Current returns the last reported percentage, 0 before any report.
func (t *Tracker) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.percent < 0 {
		return 0
	}
	return t.percent
}

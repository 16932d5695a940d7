package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/queue"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services/workqueue"
)

const (
	dequeueErrorBackoff = time.Second
	shutdownTimeout     = 30 * time.Second
)

// Worker pulls classification requests from the job queue and runs them on
// a local work queue. It never holds more requests than it can run, so
// requests stay in the shared queue for other workers.
type Worker struct {
	jobQueue queue.JobQueue
	runner   *ClassificationRunner
	wq       *workqueue.Queue
	slots    chan struct{}
	logger   *zap.Logger
}

var _ JobCanceller = (*Worker)(nil)

// NewWorker creates a worker running up to concurrency jobs at once.
func NewWorker(jobQueue queue.JobQueue, runner *ClassificationRunner, concurrency int, logger *zap.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	w := &Worker{
		jobQueue: jobQueue,
		runner:   runner,
		slots:    make(chan struct{}, concurrency),
		logger:   logger.Named("worker"),
	}
	w.wq = workqueue.New(logger,
		workqueue.WithStrategy(workqueue.NewLimitStrategy(concurrency, concurrency)),
		workqueue.WithOnUpdate(w.onTaskUpdate),
	)
	return w
}

func (w *Worker) onTaskUpdate(snap workqueue.TaskSnapshot) {
	if snap.Status.IsTerminal() {
		w.release()
	}
}

func (w *Worker) release() {
	select {
	case <-w.slots:
	default:
	}
}

// Run consumes the job queue until ctx is done or the queue is closed, then
// stops running jobs and waits for them to return.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker started", zap.Int("concurrency", cap(w.slots)))
	defer w.shutdown()

	for {
		select {
		case w.slots <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		w.wq.Prune()

		req, err := w.jobQueue.Dequeue(ctx)
		if err != nil {
			w.release()
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			w.logger.Error("Failed to dequeue job", zap.Error(err))
			select {
			case <-time.After(dequeueErrorBackoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		if err := w.wq.Enqueue(NewClassificationTask(req, w.runner)); err != nil {
			w.release()
			w.logger.Warn("Dropped job",
				zap.String("job_id", req.JobID.String()),
				zap.Error(err))
		}
	}
}

func (w *Worker) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := w.wq.Shutdown(ctx); err != nil {
		w.logger.Warn("Worker shutdown timed out", zap.Error(err))
		return
	}
	w.logger.Info("Worker stopped")
}

// Cancel stops a job running in this worker.
func (w *Worker) Cancel(id string) bool {
	return w.wq.Cancel(id)
}

// Progress summarizes the jobs this worker has seen.
func (w *Worker) Progress() workqueue.Progress {
	return w.wq.Progress()
}

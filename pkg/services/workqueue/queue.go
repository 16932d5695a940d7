package workqueue

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/llm"
)

var (
	ErrQueueClosed   = errors.New("work queue is shut down")
	ErrDuplicateTask = errors.New("task already queued")
)

// RetryConfig configures whole-task retries for retryable failures.
type RetryConfig struct {
	MaxRetries     int // 0 = no retries
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig disables whole-task retries. Classification absorbs
// per-batch failures itself, so a failed run is reported, not re-run.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     0,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Queue runs tasks in goroutines under a concurrency strategy. Each task
// gets its own cancellable context derived from the queue context.
type Queue struct {
	mu     sync.Mutex
	tasks  []*TaskState
	byID   map[string]*TaskState
	closed bool

	strategy    ConcurrencyStrategy
	retryConfig RetryConfig

	done chan struct{}
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	onUpdate func(TaskSnapshot)

	logger *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

func WithStrategy(strategy ConcurrencyStrategy) QueueOption {
	return func(q *Queue) {
		if strategy != nil {
			q.strategy = strategy
		}
	}
}

func WithRetryConfig(config RetryConfig) QueueOption {
	return func(q *Queue) {
		q.retryConfig = config
	}
}

// WithOnUpdate registers a callback invoked with a task snapshot whenever
// that task changes state. It runs under the queue lock and must not call
// back into the Queue.
func WithOnUpdate(fn func(TaskSnapshot)) QueueOption {
	return func(q *Queue) {
		q.onUpdate = fn
	}
}

// New creates a work queue. The default strategy is serialized.
func New(logger *zap.Logger, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		byID:        make(map[string]*TaskState),
		strategy:    NewSerializedStrategy(),
		retryConfig: DefaultRetryConfig(),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("workqueue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	close(q.done) // empty queue is done
	return q
}

// Enqueue adds a task and starts eligible tasks. A task whose ID is still
// pending or running is rejected.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if existing, ok := q.byID[task.ID()]; ok && !existing.GetStatus().IsTerminal() {
		return ErrDuplicateTask
	}

	q.resetDoneLocked()

	state := newTaskState(task)
	q.tasks = append(q.tasks, state)
	q.byID[task.ID()] = state

	q.logger.Info("task enqueued",
		zap.String("task_id", task.ID()),
		zap.String("task_name", task.Name()),
		zap.Bool("requires_llm", task.RequiresLLM()))

	q.notifyLocked(state)
	q.tryStartTasksLocked()
	return nil
}

// tryStartTasksLocked starts pending tasks the strategy admits, in FIFO order.
func (q *Queue) tryStartTasksLocked() {
	if q.closed {
		return
	}
	for _, ts := range q.tasks {
		if ts.GetStatus() != TaskStatusPending {
			continue
		}
		isLLM := ts.Task.RequiresLLM()
		if !q.strategy.CanStart(isLLM) {
			continue
		}
		q.strategy.OnStart(isLLM)

		ctx, cancel := context.WithCancel(q.ctx)
		ts.cancel = cancel
		ts.SetStatus(TaskStatusRunning)
		q.notifyLocked(ts)

		q.logger.Info("starting task",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()))

		q.wg.Add(1)
		go q.runTask(ctx, ts)
	}
}

func (q *Queue) runTask(ctx context.Context, ts *TaskState) {
	defer q.wg.Done()

	var lastErr error
	for attempt := 0; attempt <= q.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := q.calculateBackoff(attempt)
			q.logger.Info("retrying task after backoff",
				zap.String("task_id", ts.Task.ID()),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))

			select {
			case <-ctx.Done():
				q.completeTask(ts, ctx.Err())
				return
			case <-time.After(backoff):
			}
		}

		err := ts.Task.Execute(ctx)
		if err == nil {
			q.completeTask(ts, nil)
			return
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			break
		}
		if !llm.IsRetryable(err) {
			break
		}
		retryCount := ts.incrementRetryCount()
		if attempt >= q.retryConfig.MaxRetries {
			q.logger.Error("task failed after max retries",
				zap.String("task_id", ts.Task.ID()),
				zap.Int("retry_count", retryCount),
				zap.Error(err))
			break
		}
		q.logger.Warn("retryable error encountered",
			zap.String("task_id", ts.Task.ID()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	// A task that returns its own error after being cancelled still counts
	// as cancelled.
	if ctx.Err() != nil {
		lastErr = ctx.Err()
	}
	q.completeTask(ts, lastErr)
}

// calculateBackoff is exponential with ±10% jitter, capped at MaxBackoff.
func (q *Queue) calculateBackoff(attempt int) time.Duration {
	backoff := float64(q.retryConfig.InitialBackoff) *
		math.Pow(q.retryConfig.BackoffFactor, float64(attempt-1))
	if backoff > float64(q.retryConfig.MaxBackoff) {
		backoff = float64(q.retryConfig.MaxBackoff)
	}
	jitter := backoff * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}

func (q *Queue) completeTask(ts *TaskState, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.strategy.OnComplete(ts.Task.RequiresLLM())
	if ts.cancel != nil {
		ts.cancel()
	}

	switch {
	case err == nil:
		ts.SetStatus(TaskStatusCompleted)
		q.logger.Info("task completed", zap.String("task_id", ts.Task.ID()))
	case errors.Is(err, context.Canceled):
		ts.SetStatus(TaskStatusCancelled)
		q.logger.Info("task cancelled", zap.String("task_id", ts.Task.ID()))
	default:
		ts.SetError(err)
		ts.SetStatus(TaskStatusFailed)
		q.logger.Error("task failed",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()),
			zap.Error(err))
	}

	q.notifyLocked(ts)

	if q.allTasksDoneLocked() {
		q.closeDoneLocked()
		return
	}
	q.tryStartTasksLocked()
}

// Cancel stops one task. A pending task is marked cancelled immediately; a
// running task has its context cancelled. Returns false if the task is
// unknown or already finished.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	ts, ok := q.byID[id]
	if !ok {
		return false
	}
	switch ts.GetStatus() {
	case TaskStatusPending:
		ts.SetStatus(TaskStatusCancelled)
		q.notifyLocked(ts)
		if q.allTasksDoneLocked() {
			q.closeDoneLocked()
		}
		return true
	case TaskStatusRunning:
		if ts.cancel != nil {
			ts.cancel()
		}
		return true
	}
	return false
}

// Shutdown stops accepting tasks, cancels everything, and waits for running
// tasks to return or ctx to expire.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cancel()
		for _, ts := range q.tasks {
			if ts.GetStatus() == TaskStatusPending {
				ts.SetStatus(TaskStatusCancelled)
				q.notifyLocked(ts)
			}
		}
		if q.allTasksDoneLocked() {
			q.closeDoneLocked()
		}
		q.logger.Info("work queue shutting down")
	}
	q.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every task has finished or ctx is done. It returns the
// first task failure, if any.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
		q.mu.Lock()
		defer q.mu.Unlock()
		for _, ts := range q.tasks {
			if ts.GetStatus() == TaskStatusFailed {
				return ts.GetError()
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns the snapshot of a task by ID.
func (q *Queue) Get(id string) (TaskSnapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ts, ok := q.byID[id]
	if !ok {
		return TaskSnapshot{}, false
	}
	return ts.Snapshot(), true
}

// GetTasks returns snapshots of all tracked tasks.
func (q *Queue) GetTasks() []TaskSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	snapshots := make([]TaskSnapshot, len(q.tasks))
	for i, ts := range q.tasks {
		snapshots[i] = ts.Snapshot()
	}
	return snapshots
}

// Prune forgets finished tasks and returns how many were removed.
func (q *Queue) Prune() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.tasks[:0]
	removed := 0
	for _, ts := range q.tasks {
		if ts.GetStatus().IsTerminal() {
			if q.byID[ts.Task.ID()] == ts {
				delete(q.byID, ts.Task.ID())
			}
			removed++
			continue
		}
		kept = append(kept, ts)
	}
	for i := len(kept); i < len(q.tasks); i++ {
		q.tasks[i] = nil
	}
	q.tasks = kept
	return removed
}

// Progress summarizes task states.
func (q *Queue) Progress() Progress {
	q.mu.Lock()
	defer q.mu.Unlock()

	p := Progress{Total: len(q.tasks)}
	for _, ts := range q.tasks {
		switch ts.GetStatus() {
		case TaskStatusPending:
			p.Pending++
		case TaskStatusRunning:
			p.Running++
		case TaskStatusCompleted:
			p.Completed++
		case TaskStatusFailed:
			p.Failed++
		case TaskStatusCancelled:
			p.Cancelled++
		}
	}
	return p
}

func (q *Queue) allTasksDoneLocked() bool {
	for _, ts := range q.tasks {
		if !ts.GetStatus().IsTerminal() {
			return false
		}
	}
	return true
}

func (q *Queue) closeDoneLocked() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

func (q *Queue) resetDoneLocked() {
	select {
	case <-q.done:
		q.done = make(chan struct{})
	default:
	}
}

func (q *Queue) notifyLocked(ts *TaskState) {
	if q.onUpdate != nil {
		q.onUpdate(ts.Snapshot())
	}
}

// Progress holds queue statistics.
type Progress struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/llm"
)

type testTask struct {
	BaseTask
	executeFunc func(ctx context.Context) error
}

func newTestTask(id string, requiresLLM bool, fn func(ctx context.Context) error) *testTask {
	return &testTask{
		BaseTask:    NewBaseTask(id, "test "+id, requiresLLM),
		executeFunc: fn,
	}
}

func (t *testTask) Execute(ctx context.Context) error {
	if t.executeFunc != nil {
		return t.executeFunc(ctx)
	}
	return nil
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestQueue_EnqueueAndComplete(t *testing.T) {
	q := New(zap.NewNop())

	var executed atomic.Bool
	if err := q.Enqueue(newTestTask("a", false, func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := q.Wait(waitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !executed.Load() {
		t.Error("task was not executed")
	}
	if p := q.Progress(); p.Completed != 1 {
		t.Errorf("expected 1 completed, got %+v", p)
	}
}

func TestQueue_EmptyWaitReturnsImmediately(t *testing.T) {
	q := New(zap.NewNop())
	if err := q.Wait(waitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueue_TaskFailure(t *testing.T) {
	q := New(zap.NewNop())

	expectedErr := errors.New("stream failed")
	_ = q.Enqueue(newTestTask("a", false, func(ctx context.Context) error {
		return expectedErr
	}))

	err := q.Wait(waitCtx(t))
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected %v, got %v", expectedErr, err)
	}
	snap, ok := q.Get("a")
	if !ok || snap.Status != TaskStatusFailed || snap.Error != "stream failed" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestQueue_DuplicateRejectedWhileActive(t *testing.T) {
	q := New(zap.NewNop())
	release := make(chan struct{})

	if err := q.Enqueue(newTestTask("job-1", true, func(ctx context.Context) error {
		<-release
		return nil
	})); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(newTestTask("job-1", true, nil)); !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("expected ErrDuplicateTask, got %v", err)
	}

	close(release)
	if err := q.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	// finished IDs can be reused
	if err := q.Enqueue(newTestTask("job-1", true, nil)); err != nil {
		t.Errorf("expected re-enqueue to succeed, got %v", err)
	}
	_ = q.Wait(waitCtx(t))
}

func TestQueue_LLMConcurrencyLimit(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewLimitStrategy(2, 1)))

	var running, maxSeen int32
	var mu sync.Mutex
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_ = q.Enqueue(newTestTask(id, true, func(ctx context.Context) error {
			current := atomic.AddInt32(&running, 1)
			mu.Lock()
			if current > maxSeen {
				maxSeen = current
			}
			mu.Unlock()
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		}))
	}

	if err := q.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if maxSeen > 2 {
		t.Errorf("expected at most 2 concurrent LLM tasks, saw %d", maxSeen)
	}
	if p := q.Progress(); p.Completed != 5 {
		t.Errorf("expected 5 completed, got %+v", p)
	}
}

func TestQueue_CancelRunningTask(t *testing.T) {
	q := New(zap.NewNop())
	started := make(chan struct{})

	_ = q.Enqueue(newTestTask("job-1", false, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return errors.New("stopped early")
	}))

	<-started
	if !q.Cancel("job-1") {
		t.Fatal("expected Cancel to report true")
	}
	if err := q.Wait(waitCtx(t)); err != nil {
		t.Fatalf("cancelled task should not count as failure: %v", err)
	}
	snap, _ := q.Get("job-1")
	if snap.Status != TaskStatusCancelled {
		t.Errorf("expected cancelled, got %s", snap.Status)
	}
	if q.Cancel("job-1") {
		t.Error("cancelling a finished task should report false")
	}
	if q.Cancel("missing") {
		t.Error("cancelling an unknown task should report false")
	}
}

func TestQueue_CancelPendingTask(t *testing.T) {
	q := New(zap.NewNop())
	release := make(chan struct{})

	_ = q.Enqueue(newTestTask("first", false, func(ctx context.Context) error {
		<-release
		return nil
	}))
	var ran atomic.Bool
	_ = q.Enqueue(newTestTask("second", false, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}))

	if !q.Cancel("second") {
		t.Fatal("expected pending task to be cancelled")
	}
	close(release)
	if err := q.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if ran.Load() {
		t.Error("cancelled pending task should not run")
	}
}

func TestQueue_RetriesRetryableErrors(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2,
	}))

	var calls int32
	_ = q.Enqueue(newTestTask("a", true, func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return llm.ClassifyError(errors.New("connection refused"))
		}
		return nil
	}))

	if err := q.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
	snap, _ := q.Get("a")
	if snap.RetryCount != 2 {
		t.Errorf("expected retry count 2, got %d", snap.RetryCount)
	}
}

func TestQueue_NoRetryByDefault(t *testing.T) {
	q := New(zap.NewNop())

	var calls int32
	_ = q.Enqueue(newTestTask("a", true, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return llm.ClassifyError(errors.New("connection refused"))
	}))

	if err := q.Wait(waitCtx(t)); err == nil {
		t.Fatal("expected failure")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestQueue_ShutdownRejectsAndCancels(t *testing.T) {
	q := New(zap.NewNop())
	started := make(chan struct{})

	_ = q.Enqueue(newTestTask("a", false, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	if err := q.Shutdown(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(newTestTask("b", false, nil)); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	snap, _ := q.Get("a")
	if snap.Status != TaskStatusCancelled {
		t.Errorf("expected cancelled, got %s", snap.Status)
	}
}

func TestQueue_PruneAndOnUpdate(t *testing.T) {
	var mu sync.Mutex
	var statuses []TaskStatus
	q := New(zap.NewNop(), WithOnUpdate(func(s TaskSnapshot) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	}))

	_ = q.Enqueue(newTestTask("a", false, nil))
	if err := q.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}

	if n := q.Prune(); n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if _, ok := q.Get("a"); ok {
		t.Error("pruned task should be forgotten")
	}
	if len(q.GetTasks()) != 0 {
		t.Error("expected no tasks after prune")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []TaskStatus{TaskStatusPending, TaskStatusRunning, TaskStatusCompleted}
	if len(statuses) != len(want) {
		t.Fatalf("expected %v, got %v", want, statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("update %d: expected %s, got %s", i, want[i], statuses[i])
		}
	}
}

func TestLimitStrategy(t *testing.T) {
	s := NewLimitStrategy(0, 2)
	if !s.CanStart(true) {
		t.Fatal("expected LLM slot")
	}
	s.OnStart(true)
	if s.CanStart(true) {
		t.Error("limit below 1 should be treated as 1")
	}
	s.OnStart(false)
	s.OnStart(false)
	if s.CanStart(false) {
		t.Error("data limit reached")
	}
	s.OnComplete(false)
	if !s.CanStart(false) {
		t.Error("data slot should be free")
	}
	s.OnComplete(true)
	s.OnComplete(true)
	if !s.CanStart(true) {
		t.Error("over-completion should not go negative")
	}
}

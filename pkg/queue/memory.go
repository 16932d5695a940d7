package queue

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// MemoryQueue is an in-process JobQueue for single-binary and test runs.
type MemoryQueue struct {
	ch     chan *models.ClassificationRequest
	closed chan struct{}
	once   sync.Once
}

var _ JobQueue = (*MemoryQueue)(nil)

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = 64
	}
	return &MemoryQueue{
		ch:     make(chan *models.ClassificationRequest, capacity),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, req *models.ClassificationRequest) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- req:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*models.ClassificationRequest, error) {
	select {
	case req := <-q.ch:
		return req, nil
	case <-q.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}

// Len reports the number of buffered requests.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

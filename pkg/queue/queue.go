// Package queue carries classification requests from the API to workers
// and fans progress events back out.
package queue

import (
	"context"
	"errors"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// ErrClosed is returned by a queue that has been closed.
var ErrClosed = errors.New("queue closed")

// JobQueue transports classification requests.
type JobQueue interface {
	Enqueue(ctx context.Context, req *models.ClassificationRequest) error
	// Dequeue blocks until a request is available, ctx is done, or the
	// queue is closed.
	Dequeue(ctx context.Context) (*models.ClassificationRequest, error)
	Close() error
}

// ProgressPublisher fans out job progress events.
type ProgressPublisher interface {
	Publish(ctx context.Context, event models.ProgressEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.ProgressEvent) error { return nil }

var _ ProgressPublisher = NopPublisher{}

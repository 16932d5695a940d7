//go:build integration

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/testhelpers"
)

func TestRedisQueue_RoundTrip(t *testing.T) {
	rdb := testhelpers.GetTestRedis(t)
	key := "test:queue:" + uuid.NewString()
	q := NewRedisQueue(rdb, key, zap.NewNop())
	q.pollTimeout = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req := &models.ClassificationRequest{
		JobID:             uuid.New(),
		WorkbookID:        uuid.New(),
		SelectedColumn:    "Industry",
		ConfirmedTaxonomy: []models.TaxonomyNode{{Name: "Finance"}},
		UniqueValues:      map[string]int{"Banking": 3},
		Provider:          models.AIProviderNone,
	}
	require.NoError(t, q.Enqueue(ctx, req))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, req.JobID, got.JobID)
	assert.Equal(t, "Finance", got.ConfirmedTaxonomy[0].Name)
	assert.Equal(t, 3, got.UniqueValues["Banking"])
}

func TestRedisQueue_DequeueStopsOnCancel(t *testing.T) {
	rdb := testhelpers.GetTestRedis(t)
	q := NewRedisQueue(rdb, "test:queue:"+uuid.NewString(), zap.NewNop())
	q.pollTimeout = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.Error(t, err)
}

func TestRedisProgressPublisher(t *testing.T) {
	rdb := testhelpers.GetTestRedis(t)
	channel := "test:progress:" + uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	received := make(chan models.ProgressEvent, 1)
	require.NoError(t, SubscribeProgress(ctx, rdb, channel, zap.NewNop(), func(e models.ProgressEvent) {
		received <- e
	}))

	pub := NewRedisProgressPublisher(rdb, channel)
	event := models.ProgressEvent{
		JobID:    uuid.New(),
		Status:   models.JobStatusProcessing,
		Progress: 32,
		Message:  "Classified batch 1 of 2",
	}
	require.NoError(t, pub.Publish(ctx, event))

	select {
	case got := <-received:
		assert.Equal(t, event.JobID, got.JobID)
		assert.Equal(t, 32, got.Progress)
	case <-ctx.Done():
		t.Fatal("no progress event received")
	}
}

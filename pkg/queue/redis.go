package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

const defaultPollTimeout = 5 * time.Second

// RedisQueue is a reliable-enough FIFO on a Redis list: producers LPUSH,
// workers BRPOP. A request popped by a worker that then crashes is lost;
// the job row stays in its last state and can be re-finalized.
type RedisQueue struct {
	rdb         *redis.Client
	key         string
	pollTimeout time.Duration
	closed      atomic.Bool
	logger      *zap.Logger
}

var _ JobQueue = (*RedisQueue)(nil)

func NewRedisQueue(rdb *redis.Client, key string, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{
		rdb:         rdb,
		key:         key,
		pollTimeout: defaultPollTimeout,
		logger:      logger.Named("redis-queue"),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, req *models.ClassificationRequest) error {
	if q.closed.Load() {
		return ErrClosed
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal classification request: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", req.JobID, err)
	}
	q.logger.Debug("job enqueued", zap.String("job_id", req.JobID.String()))
	return nil
}

// Dequeue polls with BRPOP so ctx cancellation and Close are noticed
// within one poll timeout.
func (q *RedisQueue) Dequeue(ctx context.Context) (*models.ClassificationRequest, error) {
	for {
		if q.closed.Load() {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := q.rdb.BRPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("dequeue: %w", err)
		}
		// res is [key, value]
		if len(res) != 2 {
			continue
		}

		var req models.ClassificationRequest
		if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
			q.logger.Warn("dropping malformed queue payload", zap.Error(err))
			continue
		}
		return &req, nil
	}
}

// Len returns the number of queued requests.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Close stops Dequeue loops. The Redis client is owned by the caller.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}

// RedisProgressPublisher publishes JSON progress events on a pub/sub channel.
type RedisProgressPublisher struct {
	rdb     *redis.Client
	channel string
}

var _ ProgressPublisher = (*RedisProgressPublisher)(nil)

func NewRedisProgressPublisher(rdb *redis.Client, channel string) *RedisProgressPublisher {
	return &RedisProgressPublisher{rdb: rdb, channel: channel}
}

func (p *RedisProgressPublisher) Publish(ctx context.Context, event models.ProgressEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

// SubscribeProgress forwards events from the channel to onEvent until ctx
// is done. It returns once the subscription is confirmed.
func SubscribeProgress(ctx context.Context, rdb *redis.Client, channel string, logger *zap.Logger, onEvent func(models.ProgressEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var event models.ProgressEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					logger.Warn("bad progress payload", zap.Error(err))
					continue
				}
				onEvent(event)
			}
		}
	}()
	return nil
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/okian/avatarcast/pkg/logger"
	"github.com/okian/avatarcast/pkg/metrics"
)

const (
	defaultBlockTimeout = time.Second
	popErrorBackoff     = time.Second
	requeueTimeout      = 5 * time.Second
)

// boundedPush appends ARGV[1] unless the list already holds ARGV[2] items.
var boundedPush = redis.NewScript(`
if redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('LPUSH', KEYS[1], ARGV[1])
return 1
`)

// RedisQueue implements Queue on a redis list (LPUSH / BRPOP), so any
// number of processes can produce and consume.
type RedisQueue struct {
	client   redis.UniversalClient
	key      string
	capacity int
	block    time.Duration
	log      logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a queue stored under key.
func NewRedisQueue(client redis.UniversalClient, key string, opts ...Option) *RedisQueue {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisQueue{
		client:   client,
		key:      key,
		capacity: o.capacity,
		block:    o.block,
		log:      o.log.Named("queue"),
		done:     make(chan struct{}),
	}
}

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, r Request) error {
	if q.IsClosed() {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	ok, err := boundedPush.Run(ctx, q.client, []string{q.key}, payload, q.capacity).Int()
	if err != nil {
		metrics.RecordErrorByComponent("queue", "redis")
		return fmt.Errorf("push request: %w", err)
	}
	if ok == 0 {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return ErrFull
	}
	q.Len(ctx)
	return nil
}

// Dequeue implements Queue. Undecodable entries are logged and dropped.
func (q *RedisQueue) Dequeue(ctx context.Context) <-chan Request {
	out := make(chan Request)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			default:
			}

			res, err := q.client.BRPop(ctx, q.block, q.key).Result()
			switch {
			case errors.Is(err, redis.Nil):
				continue
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				q.log.Warn(ctx, "pop request", logger.Error(err))
				metrics.RecordErrorByComponent("queue", "redis")
				if !q.sleep(ctx, popErrorBackoff) {
					return
				}
				continue
			}

			var r Request
			if err := json.Unmarshal([]byte(res[1]), &r); err != nil {
				q.log.Error(ctx, "drop undecodable request", logger.Error(err))
				metrics.RecordErrorByComponent("queue", "decode")
				continue
			}
			select {
			case out <- r:
			case <-ctx.Done():
				q.requeue(r.ID, res[1])
				return
			case <-q.done:
				q.requeue(r.ID, res[1])
				return
			}
		}
	}()
	return out
}

// requeue puts a popped but undelivered entry back at the consumer end of
// the list so it is served next.
func (q *RedisQueue) requeue(id, raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
	defer cancel()
	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		q.log.Error(ctx, "requeue undelivered request", logger.String("request_id", id), logger.Error(err))
		metrics.RecordErrorByComponent("queue", "requeue")
		return
	}
	q.log.Debug(ctx, "requeued undelivered request", logger.String("request_id", id))
}

func (q *RedisQueue) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-q.done:
		return false
	}
}

// Len implements Queue.
func (q *RedisQueue) Len(ctx context.Context) int {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		q.log.Warn(ctx, "queue length", logger.Error(err))
		return 0
	}
	metrics.UpdateQueueSize(int(n))
	return int(n)
}

// Close implements Queue. Requests left in redis stay there for the next
// consumer, including one popped but not yet handed to a worker.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

// IsClosed implements Queue.
func (q *RedisQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

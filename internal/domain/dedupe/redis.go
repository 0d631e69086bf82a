package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultTTL = 24 * time.Hour

// RedisDeduper shares request IDs between processes with SET NX. Entries
// expire after ttl.
type RedisDeduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Deduper = (*RedisDeduper)(nil)

// NewRedisDeduper creates a deduper storing keys under prefix.
func NewRedisDeduper(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduper) key(requestID string) string { return d.prefix + ":" + requestID }

// Claim implements Deduper.
func (d *RedisDeduper) Claim(ctx context.Context, requestID, jobID string) (string, bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(requestID), jobID, d.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim request %s: %w", requestID, err)
	}
	if ok {
		return jobID, false, nil
	}
	existing, err := d.client.Get(ctx, d.key(requestID)).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; claim again.
		return d.Claim(ctx, requestID, jobID)
	}
	if err != nil {
		return "", false, fmt.Errorf("read request %s: %w", requestID, err)
	}
	return existing, true, nil
}

// Forget implements Deduper.
func (d *RedisDeduper) Forget(ctx context.Context, requestID string) error {
	if err := d.client.Del(ctx, d.key(requestID)).Err(); err != nil {
		return fmt.Errorf("forget request %s: %w", requestID, err)
	}
	return nil
}

// Size implements Deduper. It scans the key space and is meant for stats,
// not hot paths.
func (d *RedisDeduper) Size(ctx context.Context) int64 {
	var (
		cursor uint64
		n      int64
	)
	for {
		keys, next, err := d.client.Scan(ctx, cursor, d.prefix+":*", 500).Result()
		if err != nil {
			return n
		}
		n += int64(len(keys))
		if next == 0 {
			return n
		}
		cursor = next
	}
}

package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/pkg/metrics"
)

// Hash fields of an avatar record.
const (
	fieldFilename   = "filename"
	fieldLocation   = "location"
	fieldTags       = "tags"
	fieldUseCount   = "use_count"
	fieldLastUsedAt = "last_used_at"

	tagSeparator = ","
)

// KEYS: record, available. ARGV: id, filename, location, tags, use_count, last_used_at.
var addScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'filename', ARGV[2], 'location', ARGV[3],
	'tags', ARGV[4], 'use_count', ARGV[5], 'last_used_at', ARGV[6])
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// KEYS: available, reserved, claims. ARGV: id, now millis.
var claimScript = redis.NewScript(`
if redis.call('SMOVE', KEYS[1], KEYS[2], ARGV[1]) == 0 then return 0 end
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return 1
`)

// KEYS: available, reserved, claims. ARGV: now millis.
var claimRandomScript = redis.NewScript(`
local id = redis.call('SRANDMEMBER', KEYS[1])
if not id then return false end
redis.call('SMOVE', KEYS[1], KEYS[2], id)
redis.call('ZADD', KEYS[3], ARGV[1], id)
return id
`)

// KEYS: reserved, available, claims. ARGV: id.
var releaseScript = redis.NewScript(`
if redis.call('SMOVE', KEYS[1], KEYS[2], ARGV[1]) == 0 then return 0 end
redis.call('ZREM', KEYS[3], ARGV[1])
return 1
`)

// KEYS: available, reserved, used, record, claims. ARGV: id, now.
// Returns -1 unknown, 0 already used, 1 consumed.
var markUsedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[4]) == 0 then return -1 end
if redis.call('SISMEMBER', KEYS[3], ARGV[1]) == 1 then return 0 end
if redis.call('SMOVE', KEYS[2], KEYS[3], ARGV[1]) == 0 then
	if redis.call('SMOVE', KEYS[1], KEYS[3], ARGV[1]) == 0 then return -1 end
end
redis.call('ZREM', KEYS[5], ARGV[1])
redis.call('HINCRBY', KEYS[4], 'use_count', 1)
redis.call('HSET', KEYS[4], 'last_used_at', ARGV[2])
return 1
`)

// KEYS: reserved, available, claims. ARGV: now millis, cutoff millis.
// Reservations without a claim time are stamped now so they age out too.
var releaseStaleScript = redis.NewScript(`
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
	if not redis.call('ZSCORE', KEYS[3], id) then
		redis.call('ZADD', KEYS[3], ARGV[1], id)
	end
end
local released = {}
for _, id in ipairs(redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[2])) do
	redis.call('ZREM', KEYS[3], id)
	if redis.call('SMOVE', KEYS[1], KEYS[2], id) == 1 then
		table.insert(released, id)
	end
end
return released
`)

// RedisPool keeps partitions as Redis sets so several processes can share
// one pool. Every transition is a single SMOVE or Lua script. Claim times
// live in a sorted set so reservations left by a crashed process can be
// returned with ReleaseStale.
type RedisPool struct {
	client redis.UniversalClient
	prefix string
	opts   options
}

var _ Pool = (*RedisPool)(nil)

// NewRedisPool creates a pool stored under prefix.
func NewRedisPool(client redis.UniversalClient, prefix string, opts ...Option) *RedisPool {
	p := &RedisPool{client: client, prefix: strings.TrimSuffix(prefix, ":"), opts: defaultOptions()}
	for _, opt := range opts {
		opt(&p.opts)
	}
	return p
}

func (p *RedisPool) setKey(m model.Membership) string { return p.prefix + ":" + string(m) }
func (p *RedisPool) recordKey(id string) string       { return p.prefix + ":avatar:" + id }
func (p *RedisPool) claimsKey() string                 { return p.prefix + ":claimed_at" }

func (p *RedisPool) nowMillis() int64 { return p.opts.now().UnixMilli() }

// PickRandomAvailable implements Pool.
func (p *RedisPool) PickRandomAvailable(ctx context.Context) (model.AvatarCandidate, error) {
	id, err := p.client.SRandMember(ctx, p.setKey(model.MembershipAvailable)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && id == "") {
		return model.AvatarCandidate{}, ErrPoolExhausted
	}
	if err != nil {
		return model.AvatarCandidate{}, fmt.Errorf("pick random: %w", err)
	}
	return p.load(ctx, id, model.MembershipAvailable)
}

// Available implements Pool.
func (p *RedisPool) Available(ctx context.Context) ([]model.AvatarCandidate, error) {
	ids, err := p.client.SMembers(ctx, p.setKey(model.MembershipAvailable)).Result()
	if err != nil {
		return nil, fmt.Errorf("list available: %w", err)
	}
	sort.Strings(ids)

	cmds := make([]*redis.StringStringMapCmd, len(ids))
	if len(ids) > 0 {
		_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, id := range ids {
				cmds[i] = pipe.HGetAll(ctx, p.recordKey(id))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("load available: %w", err)
		}
	}

	out := make([]model.AvatarCandidate, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, decodeCandidate(id, model.MembershipAvailable, fields))
	}
	return out, nil
}

// Claim implements Pool.
func (p *RedisPool) Claim(ctx context.Context, id string) (model.AvatarCandidate, error) {
	moved, err := claimScript.Run(ctx, p.client,
		[]string{p.setKey(model.MembershipAvailable), p.setKey(model.MembershipReserved), p.claimsKey()},
		id, p.nowMillis()).Int()
	if err != nil {
		return model.AvatarCandidate{}, fmt.Errorf("claim %s: %w", id, err)
	}
	if moved == 0 {
		return model.AvatarCandidate{}, fmt.Errorf("claim %s: %w", id, p.missOr(ctx, id, ErrNotAvailable))
	}
	metrics.RecordPoolOperation(opClaim)
	return p.load(ctx, id, model.MembershipReserved)
}

// ClaimRandom implements Pool.
func (p *RedisPool) ClaimRandom(ctx context.Context) (model.AvatarCandidate, error) {
	id, err := claimRandomScript.Run(ctx, p.client,
		[]string{p.setKey(model.MembershipAvailable), p.setKey(model.MembershipReserved), p.claimsKey()},
		p.nowMillis()).Text()
	if errors.Is(err, redis.Nil) {
		return model.AvatarCandidate{}, ErrPoolExhausted
	}
	if err != nil {
		return model.AvatarCandidate{}, fmt.Errorf("claim random: %w", err)
	}
	metrics.RecordPoolOperation(opClaim)
	return p.load(ctx, id, model.MembershipReserved)
}

// Release implements Pool.
func (p *RedisPool) Release(ctx context.Context, id string) error {
	moved, err := releaseScript.Run(ctx, p.client,
		[]string{p.setKey(model.MembershipReserved), p.setKey(model.MembershipAvailable), p.claimsKey()}, id).Int()
	if err != nil {
		return fmt.Errorf("%s %s: %w", opRelease, id, err)
	}
	if moved == 0 {
		return fmt.Errorf("%s %s: %w", opRelease, id, p.missOr(ctx, id, ErrNotReserved))
	}
	metrics.RecordPoolOperation(opRelease)
	return nil
}

// ReleaseStale returns reservations claimed more than olderThan ago to the
// available partition and reports their ids, sorted.
func (p *RedisPool) ReleaseStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	now := p.opts.now()
	ids, err := releaseStaleScript.Run(ctx, p.client,
		[]string{p.setKey(model.MembershipReserved), p.setKey(model.MembershipAvailable), p.claimsKey()},
		now.UnixMilli(), now.Add(-olderThan).UnixMilli()).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("release stale: %w", err)
	}
	sort.Strings(ids)
	for range ids {
		metrics.RecordPoolOperation(opRelease)
	}
	return ids, nil
}

// Recycle implements Pool.
func (p *RedisPool) Recycle(ctx context.Context, id string) error {
	return p.move(ctx, opRecycle, id, model.MembershipUsed, model.MembershipAvailable, ErrNotUsed)
}

// MarkUsed implements Pool.
func (p *RedisPool) MarkUsed(ctx context.Context, id string) error {
	keys := []string{
		p.setKey(model.MembershipAvailable),
		p.setKey(model.MembershipReserved),
		p.setKey(model.MembershipUsed),
		p.recordKey(id),
		p.claimsKey(),
	}
	res, err := markUsedScript.Run(ctx, p.client, keys, id, p.opts.now().UTC().Format(time.RFC3339Nano)).Int()
	if err != nil {
		return fmt.Errorf("mark used %s: %w", id, err)
	}
	switch res {
	case -1:
		return fmt.Errorf("mark used %s: %w", id, ErrNotFound)
	case 0:
		return fmt.Errorf("mark used %s: %w", id, ErrAlreadyUsed)
	}
	metrics.RecordPoolOperation(opMarkUsed)
	return nil
}

// Add implements Pool.
func (p *RedisPool) Add(ctx context.Context, c model.AvatarCandidate) (bool, error) {
	if c.ID == "" {
		return false, ErrInvalidAvatar
	}
	lastUsed := ""
	if c.LastUsedAt != nil {
		lastUsed = c.LastUsedAt.UTC().Format(time.RFC3339Nano)
	}
	added, err := addScript.Run(ctx, p.client,
		[]string{p.recordKey(c.ID), p.setKey(model.MembershipAvailable)},
		c.ID, c.Filename, c.Location, strings.Join(c.Tags, tagSeparator), c.UseCount, lastUsed).Int()
	if err != nil {
		return false, fmt.Errorf("add %s: %w", c.ID, err)
	}
	if added == 1 {
		metrics.RecordPoolOperation(opAdd)
	}
	return added == 1, nil
}

// Stats implements Pool.
func (p *RedisPool) Stats(ctx context.Context) (Stats, error) {
	var avail, reserved, used *redis.IntCmd
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		avail = pipe.SCard(ctx, p.setKey(model.MembershipAvailable))
		reserved = pipe.SCard(ctx, p.setKey(model.MembershipReserved))
		used = pipe.SCard(ctx, p.setKey(model.MembershipUsed))
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	s := Stats{Available: int(avail.Val()), Reserved: int(reserved.Val()), Used: int(used.Val())}
	metrics.UpdatePoolSize(s.Available, s.Reserved, s.Used)
	return s, nil
}

func (p *RedisPool) move(ctx context.Context, op, id string, from, to model.Membership, wrong error) error {
	moved, err := p.client.SMove(ctx, p.setKey(from), p.setKey(to), id).Result()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if !moved {
		return fmt.Errorf("%s %s: %w", op, id, p.missOr(ctx, id, wrong))
	}
	metrics.RecordPoolOperation(op)
	return nil
}

// missOr returns ErrNotFound when id has no record, wrong otherwise.
func (p *RedisPool) missOr(ctx context.Context, id string, wrong error) error {
	n, err := p.client.Exists(ctx, p.recordKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return wrong
}

func (p *RedisPool) load(ctx context.Context, id string, m model.Membership) (model.AvatarCandidate, error) {
	fields, err := p.client.HGetAll(ctx, p.recordKey(id)).Result()
	if err != nil {
		return model.AvatarCandidate{}, fmt.Errorf("load %s: %w", id, err)
	}
	if len(fields) == 0 {
		return model.AvatarCandidate{}, fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	return decodeCandidate(id, m, fields), nil
}

func decodeCandidate(id string, m model.Membership, fields map[string]string) model.AvatarCandidate {
	c := model.AvatarCandidate{
		ID:         id,
		Filename:   fields[fieldFilename],
		Location:   fields[fieldLocation],
		Membership: m,
	}
	if tags := fields[fieldTags]; tags != "" {
		c.Tags = strings.Split(tags, tagSeparator)
	}
	if n, err := strconv.Atoi(fields[fieldUseCount]); err == nil {
		c.UseCount = n
	}
	if ts := fields[fieldLastUsedAt]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			c.LastUsedAt = &t
		}
	}
	return c
}

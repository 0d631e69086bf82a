package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/pkg/metrics"
)

// InMemoryPool is a mutex-guarded Pool.
type InMemoryPool struct {
	mu      sync.Mutex
	entries map[string]*model.AvatarCandidate
	opts    options
}

var _ Pool = (*InMemoryPool)(nil)

// NewInMemoryPool creates a pool holding candidates as available.
// Candidates keep their Membership when it is set.
func NewInMemoryPool(candidates []model.AvatarCandidate, opts ...Option) *InMemoryPool {
	p := &InMemoryPool{
		entries: make(map[string]*model.AvatarCandidate, len(candidates)),
		opts:    defaultOptions(),
	}
	for _, opt := range opts {
		opt(&p.opts)
	}
	for _, c := range candidates {
		if c.ID == "" {
			continue
		}
		c = cloneCandidate(c)
		if c.Membership == "" {
			c.Membership = model.MembershipAvailable
		}
		p.entries[c.ID] = &c
	}
	p.updateSizeLocked()
	return p
}

// PickRandomAvailable implements Pool.
func (p *InMemoryPool) PickRandomAvailable(ctx context.Context) (model.AvatarCandidate, error) {
	if err := ctx.Err(); err != nil {
		return model.AvatarCandidate{}, fmt.Errorf("pick random: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.randomAvailableLocked()
	if err != nil {
		return model.AvatarCandidate{}, err
	}
	return cloneCandidate(*c), nil
}

// Available implements Pool.
func (p *InMemoryPool) Available(ctx context.Context) ([]model.AvatarCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list available: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.AvatarCandidate, 0, len(p.entries))
	for _, c := range p.availableLocked() {
		out = append(out, cloneCandidate(*c))
	}
	return out, nil
}

// Claim implements Pool.
func (p *InMemoryPool) Claim(ctx context.Context, id string) (model.AvatarCandidate, error) {
	if err := ctx.Err(); err != nil {
		return model.AvatarCandidate{}, fmt.Errorf("claim %s: %w", id, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.entries[id]
	if !ok {
		return model.AvatarCandidate{}, fmt.Errorf("claim %s: %w", id, ErrNotFound)
	}
	if c.Membership != model.MembershipAvailable {
		return model.AvatarCandidate{}, fmt.Errorf("claim %s (%s): %w", id, c.Membership, ErrNotAvailable)
	}
	c.Membership = model.MembershipReserved
	p.recordLocked(opClaim)
	return cloneCandidate(*c), nil
}

// ClaimRandom implements Pool.
func (p *InMemoryPool) ClaimRandom(ctx context.Context) (model.AvatarCandidate, error) {
	if err := ctx.Err(); err != nil {
		return model.AvatarCandidate{}, fmt.Errorf("claim random: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.randomAvailableLocked()
	if err != nil {
		return model.AvatarCandidate{}, err
	}
	c.Membership = model.MembershipReserved
	p.recordLocked(opClaim)
	return cloneCandidate(*c), nil
}

// Release implements Pool.
func (p *InMemoryPool) Release(ctx context.Context, id string) error {
	return p.move(ctx, opRelease, id, model.MembershipReserved, model.MembershipAvailable, ErrNotReserved)
}

// Recycle implements Pool.
func (p *InMemoryPool) Recycle(ctx context.Context, id string) error {
	return p.move(ctx, opRecycle, id, model.MembershipUsed, model.MembershipAvailable, ErrNotUsed)
}

// MarkUsed implements Pool.
func (p *InMemoryPool) MarkUsed(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mark used %s: %w", id, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.entries[id]
	if !ok {
		return fmt.Errorf("mark used %s: %w", id, ErrNotFound)
	}
	if c.Membership == model.MembershipUsed {
		return fmt.Errorf("mark used %s: %w", id, ErrAlreadyUsed)
	}
	now := p.opts.now()
	c.Membership = model.MembershipUsed
	c.UseCount++
	c.LastUsedAt = &now
	p.recordLocked(opMarkUsed)
	return nil
}

// Add implements Pool.
func (p *InMemoryPool) Add(ctx context.Context, c model.AvatarCandidate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("add: %w", err)
	}
	if c.ID == "" {
		return false, ErrInvalidAvatar
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[c.ID]; ok {
		return false, nil
	}
	c = cloneCandidate(c)
	c.Membership = model.MembershipAvailable
	p.entries[c.ID] = &c
	p.recordLocked(opAdd)
	return true, nil
}

// Stats implements Pool.
func (p *InMemoryPool) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked(), nil
}

func (p *InMemoryPool) move(ctx context.Context, op, id string, from, to model.Membership, wrong error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.entries[id]
	if !ok {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	if c.Membership != from {
		return fmt.Errorf("%s %s (%s): %w", op, id, c.Membership, wrong)
	}
	c.Membership = to
	p.recordLocked(op)
	return nil
}

// availableLocked returns available entries sorted by ID so random picks
// are reproducible under a seeded source.
func (p *InMemoryPool) availableLocked() []*model.AvatarCandidate {
	out := make([]*model.AvatarCandidate, 0, len(p.entries))
	for _, c := range p.entries {
		if c.Membership == model.MembershipAvailable {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *InMemoryPool) randomAvailableLocked() (*model.AvatarCandidate, error) {
	avail := p.availableLocked()
	if len(avail) == 0 {
		return nil, ErrPoolExhausted
	}
	return avail[p.opts.rng.Intn(len(avail))], nil
}

func (p *InMemoryPool) statsLocked() Stats {
	var s Stats
	for _, c := range p.entries {
		switch c.Membership {
		case model.MembershipAvailable:
			s.Available++
		case model.MembershipReserved:
			s.Reserved++
		case model.MembershipUsed:
			s.Used++
		}
	}
	return s
}

func (p *InMemoryPool) recordLocked(op string) {
	metrics.RecordPoolOperation(op)
	p.updateSizeLocked()
}

func (p *InMemoryPool) updateSizeLocked() {
	s := p.statsLocked()
	metrics.UpdatePoolSize(s.Available, s.Reserved, s.Used)
}

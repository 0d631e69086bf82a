// Package scheduler rescans avatar storage on a cron schedule and registers
// new images with the pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/pkg/logger"
	"github.com/okian/avatarcast/pkg/metrics"
)

// Source lists the avatars currently in storage.
type Source interface {
	Discover(ctx context.Context) ([]model.AvatarCandidate, error)
}

// Registry accepts newly discovered avatars.
type Registry interface {
	Add(ctx context.Context, c model.AvatarCandidate) (bool, error)
}

// StaleReleaser returns reservations abandoned by a crashed process.
type StaleReleaser interface {
	ReleaseStale(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// PoolSync copies available images from a Source into a Registry.
type PoolSync struct {
	source   Source
	registry Registry
	log      logger.Logger
	staleTTL time.Duration
}

// SyncOption configures a PoolSync.
type SyncOption func(*PoolSync)

// WithStaleReservations makes every sync release reservations older than
// ttl when the registry is a StaleReleaser. Zero disables it.
func WithStaleReservations(ttl time.Duration) SyncOption {
	return func(s *PoolSync) {
		s.staleTTL = ttl
	}
}

// NewPoolSync creates a sync job.
func NewPoolSync(source Source, registry Registry, log logger.Logger, opts ...SyncOption) *PoolSync {
	if log == nil {
		log = logger.Nop()
	}
	s := &PoolSync{source: source, registry: registry, log: log.Named("pool-sync")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync registers every available image the registry does not know yet and
// returns how many were added. Used images are skipped so a consumed
// avatar is never resurrected by a rescan.
func (s *PoolSync) Sync(ctx context.Context) (int, error) {
	s.releaseStale(ctx)

	found, err := s.source.Discover(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("scheduler", "discover")
		return 0, fmt.Errorf("discover avatars: %w", err)
	}

	added := 0
	var errs []error
	for _, c := range found {
		if c.Membership == model.MembershipUsed {
			continue
		}
		ok, err := s.registry.Add(ctx, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("add %s: %w", c.ID, err))
			continue
		}
		if ok {
			added++
		}
	}
	if added > 0 {
		s.log.Info(ctx, "new avatars registered", logger.Int("added", added))
	}
	if len(errs) > 0 {
		metrics.RecordErrorByComponent("scheduler", "add")
	}
	return added, errors.Join(errs...)
}

func (s *PoolSync) releaseStale(ctx context.Context) {
	r, ok := s.registry.(StaleReleaser)
	if !ok || s.staleTTL <= 0 {
		return
	}
	ids, err := r.ReleaseStale(ctx, s.staleTTL)
	if err != nil {
		metrics.RecordErrorByComponent("scheduler", "release_stale")
		s.log.Warn(ctx, "release stale reservations", logger.Error(err))
		return
	}
	if len(ids) > 0 {
		s.log.Warn(ctx, "stale reservations released", logger.Strings("avatars", ids))
	}
}

// Scheduler runs a PoolSync on a cron spec such as "@every 5m".
type Scheduler struct {
	cron *cron.Cron
	sync *PoolSync
	log  logger.Logger

	mu     sync.Mutex
	ctx    context.Context //nolint:containedctx // lifetime of scheduled runs
	cancel context.CancelFunc
}

// New parses spec and creates a stopped scheduler.
func New(spec string, job *PoolSync, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sync: job,
		log:  log.Named("scheduler"),
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running scheduled syncs until Stop or ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.log.Info(ctx, "pool sync scheduled", logger.Int("entries", len(s.cron.Entries())))
}

// Stop halts the schedule and waits for a running sync to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := s.sync.Sync(ctx); err != nil {
		s.log.Warn(ctx, "pool sync failed", logger.Error(err))
	}
}

// Package service wires configuration into a running generation service and
// implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/okian/avatarcast/internal/adapters/http/api"
	"github.com/okian/avatarcast/internal/adapters/mq/queue"
	workerpool "github.com/okian/avatarcast/internal/adapters/mq/worker"
	"github.com/okian/avatarcast/internal/adapters/pool"
	"github.com/okian/avatarcast/internal/adapters/repository"
	"github.com/okian/avatarcast/internal/adapters/scheduler"
	"github.com/okian/avatarcast/internal/adapters/speech"
	"github.com/okian/avatarcast/internal/adapters/storage"
	"github.com/okian/avatarcast/internal/adapters/video"
	"github.com/okian/avatarcast/internal/config"
	"github.com/okian/avatarcast/internal/domain/dedupe"
	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/internal/orchestrator"
	"github.com/okian/avatarcast/pkg/logger"
	"github.com/okian/avatarcast/pkg/metrics"
)

const (
	defaultTrackedJobs = 1000
	stopTimeout        = 30 * time.Second
)

var _ api.Dependencies = (*Service)(nil)

// Service implements the API dependencies for the generation system.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Injected or built in Start.
	redis      redis.UniversalClient
	ownsRedis  bool
	httpClient *http.Client
	store      repository.Store
	synth      speech.Synthesizer
	providers  []video.Provider

	local     *storage.LocalStore
	media     *storage.MediaStore
	pool      pool.Pool
	notifier  orchestrator.Notifier
	orch      *orchestrator.Orchestrator
	queue     queue.Queue
	deduper   dedupe.Deduper
	workers   *workerpool.Pool
	poolSync  *scheduler.PoolSync
	scheduler *scheduler.Scheduler
	jobs      *jobTracker

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRedisClient shares an existing client with every redis backend.
func WithRedisClient(c redis.UniversalClient) Option {
	return func(s *Service) { s.redis = c }
}

// WithHTTPClient sets the client used by provider adapters and webhooks.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithStore replaces the configured generation record store.
func WithStore(st repository.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithSynthesizer replaces the configured speech chain.
func WithSynthesizer(sy speech.Synthesizer) Option {
	return func(s *Service) { s.synth = sy }
}

// WithVideoProviders replaces the built-in video adapters. The configured
// priority list still selects and orders them by name.
func WithVideoProviders(providers ...video.Provider) Option {
	return func(s *Service) { s.providers = providers }
}

// New constructs a Service from cfg. Nothing is started until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Minute},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named("service")
	return s
}

// Start builds every component and starts the workers and the pool sync.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting generation service...")

	s.local = storage.NewLocalStore(s.cfg.Avatars.Dir, s.cfg.Avatars.UsedDir, s.cfg.Avatars.PublicBaseURL)
	s.media = storage.NewMediaStore(s.cfg.Media.Dir, s.cfg.Media.PublicBaseURL)
	s.jobs = newJobTracker(defaultTrackedJobs)

	var err error
	if s.pool, err = s.buildPool(ctx); err != nil {
		return s.abort(err)
	}
	s.poolSync = scheduler.NewPoolSync(s.local, s.pool, s.logger,
		scheduler.WithStaleReservations(s.cfg.ReservationTTL()))
	if s.cfg.Avatars.Backend == "redis" {
		if _, err := s.poolSync.Sync(ctx); err != nil {
			s.logger.Warn(ctx, "initial pool sync", logger.Error(err))
		}
	}
	if s.store, err = s.buildStore(ctx); err != nil {
		return s.abort(err)
	}
	synth, err := s.buildSynthesizer()
	if err != nil {
		return s.abort(err)
	}
	s.notifier = s.buildNotifier()
	if s.orch, err = s.buildOrchestrator(s.pool, synth, s.buildRegistry()); err != nil {
		return s.abort(err)
	}

	s.queue = s.buildQueue()
	s.deduper = s.buildDeduper()

	s.scheduler = nil
	if spec := strings.TrimSpace(s.cfg.Avatars.SyncSchedule); spec != "" {
		if s.scheduler, err = scheduler.New(spec, s.poolSync, s.logger); err != nil {
			return s.abort(err)
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.workers = workerpool.NewPool(s.cfg.WorkerCount, s.queue, workerpool.ProcessorFunc(s.process),
		workerpool.WithLogger(s.logger))
	s.workers.Start(runCtx)
	if s.scheduler != nil {
		s.scheduler.Start(runCtx)
	}

	s.started = true
	stats, _ := s.pool.Stats(ctx)
	s.logger.Info(ctx, "generation service started",
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.String("poolBackend", s.cfg.Avatars.Backend),
		logger.String("queueBackend", s.cfg.QueueBackend),
		logger.Int("available", stats.Available),
		logger.Strings("videoPriority", s.cfg.Video.Priority),
	)
	return nil
}

func (s *Service) abort(err error) error {
	s.closeRedis()
	return fmt.Errorf("start service: %w", err)
}

// Stop gracefully shuts down the service. Jobs already running finish
// unless ctx expires first.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping generation service...")

	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	var errs []error
	if s.scheduler != nil {
		errs = append(errs, s.scheduler.Stop(ctx))
	}
	errs = append(errs, s.workers.Shutdown(ctx))
	s.cancel()
	s.closeRedis()

	s.started = false
	s.logger.Info(ctx, "generation service stopped")
	return errors.Join(errs...)
}

func (s *Service) closeRedis() {
	if s.ownsRedis && s.redis != nil {
		_ = s.redis.Close()
		s.redis = nil
		s.ownsRedis = false
	}
}

// Submit validates and queues req. With a request ID a retried submission
// returns the original job instead of queueing a second one.
func (s *Service) Submit(ctx context.Context, requestID string, req model.GenerationRequest) (string, bool, error) {
	if !s.isStarted() {
		return "", false, ErrNotStarted
	}
	if strings.TrimSpace(req.Script) == "" {
		return "", false, fmt.Errorf("%w: script is required", ErrInvalidRequest)
	}

	jobID := uuid.NewString()
	if requestID != "" {
		existing, seen, err := s.deduper.Claim(ctx, requestID, jobID)
		if err != nil {
			return "", false, fmt.Errorf("check request id: %w", err)
		}
		if seen {
			metrics.RecordDuplicate()
			s.logger.Debug(ctx, "duplicate request", logger.String("request_id", requestID), logger.String("job_id", existing))
			return existing, true, nil
		}
	}

	req.ID = jobID
	req.AcceptedAt = time.Now().UTC()
	s.jobs.put(model.GenerationJob{ID: jobID, Script: req.Script, State: model.StatePending, CreatedAt: req.AcceptedAt})

	if err := s.queue.Enqueue(ctx, req); err != nil {
		s.jobs.remove(jobID)
		if requestID != "" {
			if ferr := s.deduper.Forget(ctx, requestID); ferr != nil {
				s.logger.Warn(ctx, "forget request id", logger.Error(ferr))
			}
		}
		if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) {
			return "", false, ErrQueueFull
		}
		return "", false, fmt.Errorf("enqueue: %w", err)
	}
	return jobID, false, nil
}

// Generate runs req synchronously, bypassing the queue.
func (s *Service) Generate(ctx context.Context, req model.GenerationRequest) (*orchestrator.Result, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return s.orch.Generate(ctx, req)
}

// process is the worker entry point.
func (s *Service) process(ctx context.Context, req model.GenerationRequest) error {
	_, err := s.orch.Generate(ctx, req)
	return err
}

// Job returns the latest known state of a job.
func (s *Service) Job(ctx context.Context, id string) (model.GenerationJob, error) {
	if !s.isStarted() {
		return model.GenerationJob{}, ErrNotStarted
	}
	if job, ok := s.jobs.get(id); ok {
		return job, nil
	}
	job, err := s.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.GenerationJob{}, ErrJobNotFound
	}
	if err != nil {
		return model.GenerationJob{}, err
	}
	return job, nil
}

// Jobs lists recent jobs, newest first. Without a database only jobs kept
// in memory are returned.
func (s *Service) Jobs(ctx context.Context, state model.JobState, limit int) ([]model.GenerationJob, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	if _, nop := s.store.(repository.NopStore); nop {
		return s.jobs.list(state, limit), nil
	}
	jobs, err := s.store.List(ctx, repository.Filter{State: state, Limit: limit})
	if errors.Is(err, repository.ErrInvalidLimit) {
		return nil, fmt.Errorf("%w: limit must be within [0,%d]", ErrInvalidRequest, repository.MaxListLimit)
	}
	return jobs, err
}

// Avatars returns the pool statistics and the available avatars.
func (s *Service) Avatars(ctx context.Context) (api.PoolView, error) {
	if !s.isStarted() {
		return api.PoolView{}, ErrNotStarted
	}
	stats, err := s.pool.Stats(ctx)
	if err != nil {
		return api.PoolView{}, err
	}
	avail, err := s.pool.Available(ctx)
	if err != nil {
		return api.PoolView{}, err
	}
	return api.PoolView{Stats: stats, Available: avail}, nil
}

// Recycle returns a used avatar to the available set and moves its file
// back into the available directory.
func (s *Service) Recycle(ctx context.Context, id string) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	err := s.pool.Recycle(ctx, id)
	switch {
	case errors.Is(err, pool.ErrNotFound):
		return ErrAvatarNotFound
	case errors.Is(err, pool.ErrNotUsed):
		return ErrNotRecyclable
	case err != nil:
		return err
	}

	c := model.AvatarCandidate{ID: id, Filename: id}
	if avail, err := s.pool.Available(ctx); err == nil {
		for _, a := range avail {
			if a.ID == id {
				c = a
				break
			}
		}
	}
	if err := s.local.Restore(ctx, c); err != nil && !errors.Is(err, storage.ErrNotLocal) {
		s.logger.Warn(ctx, "restore avatar file", logger.String("avatar", id), logger.Error(err))
	}
	return nil
}

// SyncAvatars rescans avatar storage now.
func (s *Service) SyncAvatars(ctx context.Context) (int, error) {
	if !s.isStarted() {
		return 0, ErrNotStarted
	}
	return s.poolSync.Sync(ctx)
}

// Ready reports whether the service accepts work.
func (s *Service) Ready(context.Context) bool { return s.isStarted() }

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":      s.started,
		"workerCount":  s.cfg.WorkerCount,
		"queueSize":    s.cfg.QueueSize,
		"queueBackend": s.cfg.QueueBackend,
		"poolBackend":  s.cfg.Avatars.Backend,
	}
	if !s.started {
		return stats
	}

	stats["queueLength"] = s.queue.Len(ctx)
	stats["dedupeSize"] = s.deduper.Size(ctx)
	if ps, err := s.pool.Stats(ctx); err == nil {
		stats["pool"] = ps
		metrics.UpdatePoolSize(ps.Available, ps.Reserved, ps.Used)
	}
	jobs := make(map[string]int)
	for state, n := range s.jobs.counts() {
		jobs[string(state)] = n
	}
	stats["jobs"] = jobs
	return stats
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/pkg/logger"
	"github.com/okian/avatarcast/pkg/metrics"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultMaxOpen  = 25
	defaultMaxIdle  = 5
	defaultListSize = 50
)

// GormStore keeps generation records in a SQL database through GORM.
type GormStore struct {
	db      *gorm.DB
	log     logger.Logger
	timeout time.Duration
	migrate bool
}

var _ Store = (*GormStore)(nil)

// OpenPostgres connects to PostgreSQL and returns a migrated store.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(defaultMaxOpen)
	sqlDB.SetMaxIdleConns(defaultMaxIdle)
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewGormStore(ctx, db, opts...)
}

// NewGormStore wraps an open gorm.DB. Unless WithoutMigration is given the
// generations table is created or updated.
func NewGormStore(ctx context.Context, db *gorm.DB, opts ...Option) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("repository: nil database")
	}
	s := &GormStore{db: db, log: logger.Nop(), timeout: defaultTimeout, migrate: true}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("repository")

	if s.migrate {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.db.WithContext(ctx).AutoMigrate(&GenerationRecord{}); err != nil {
			return nil, fmt.Errorf("migrate generations: %w", err)
		}
	}
	return s, nil
}

// RecordSuccess implements Store.
func (s *GormStore) RecordSuccess(ctx context.Context, job model.GenerationJob) error {
	return s.save(ctx, job)
}

// RecordFailure implements Store.
func (s *GormStore) RecordFailure(ctx context.Context, job model.GenerationJob) error {
	return s.save(ctx, job)
}

func (s *GormStore) save(ctx context.Context, job model.GenerationJob) error {
	if job.ID == "" {
		return ErrInvalidJob
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec := newRecord(job)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		metrics.RecordErrorByComponent("repository", "save")
		return fmt.Errorf("save generation %s: %w", job.ID, err)
	}
	s.log.Debug(ctx, "generation recorded",
		logger.String("job_id", job.ID),
		logger.String("state", string(job.State)))
	return nil
}

// Get implements Store.
func (s *GormStore) Get(ctx context.Context, id string) (model.GenerationJob, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rec GenerationRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.GenerationJob{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordErrorByComponent("repository", "get")
		return model.GenerationJob{}, fmt.Errorf("get generation %s: %w", id, err)
	}
	return rec.Job(), nil
}

// List implements Store.
func (s *GormStore) List(ctx context.Context, f Filter) ([]model.GenerationJob, error) {
	limit := f.Limit
	switch {
	case limit < 0 || limit > MaxListLimit:
		return nil, ErrInvalidLimit
	case limit == 0:
		limit = defaultListSize
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := s.db.WithContext(ctx).Model(&GenerationRecord{})
	if f.State != "" {
		q = q.Where("state = ?", string(f.State))
	}
	if f.Provider != "" {
		q = q.Where("provider = ?", f.Provider)
	}
	var recs []GenerationRecord
	if err := q.Order("created_at desc").Order("id").Limit(limit).Find(&recs).Error; err != nil {
		metrics.RecordErrorByComponent("repository", "list")
		return nil, fmt.Errorf("list generations: %w", err)
	}

	out := make([]model.GenerationJob, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Job())
	}
	return out, nil
}

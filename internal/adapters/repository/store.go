// Package repository persists terminal generation jobs.
package repository

import (
	"context"

	"github.com/okian/avatarcast/internal/domain/model"
)

// MaxListLimit caps List results.
const MaxListLimit = 500

// Filter narrows List results. Zero values match everything.
type Filter struct {
	State    model.JobState
	Provider string
	Limit    int
}

// Store provides read/write access to generation records.
type Store interface {
	// RecordSuccess upserts a succeeded job.
	RecordSuccess(ctx context.Context, job model.GenerationJob) error
	// RecordFailure upserts a failed job.
	RecordFailure(ctx context.Context, job model.GenerationJob) error

	// Get returns the job with id or ErrNotFound.
	Get(ctx context.Context, id string) (model.GenerationJob, error)

	// List returns jobs newest first.
	List(ctx context.Context, f Filter) ([]model.GenerationJob, error)
}

// NopStore drops every record. It is used when no database is configured.
type NopStore struct{}

var _ Store = NopStore{}

// RecordSuccess implements Store.
func (NopStore) RecordSuccess(context.Context, model.GenerationJob) error { return nil }

// RecordFailure implements Store.
func (NopStore) RecordFailure(context.Context, model.GenerationJob) error { return nil }

// Get implements Store.
func (NopStore) Get(context.Context, string) (model.GenerationJob, error) {
	return model.GenerationJob{}, ErrNotFound
}

// List implements Store.
func (NopStore) List(context.Context, Filter) ([]model.GenerationJob, error) { return nil, nil }

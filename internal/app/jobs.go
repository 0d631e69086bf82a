package service

import (
	"sort"
	"sync"

	"github.com/okian/avatarcast/internal/domain/model"
)

// jobTracker keeps the latest snapshot of recent jobs so callers can poll
// progress before anything reaches the database. Oldest jobs are evicted
// once max is reached.
type jobTracker struct {
	mu    sync.RWMutex
	jobs  map[string]model.GenerationJob
	order []string
	max   int
}

func newJobTracker(maxJobs int) *jobTracker {
	if maxJobs <= 0 {
		maxJobs = defaultTrackedJobs
	}
	return &jobTracker{jobs: make(map[string]model.GenerationJob), max: maxJobs}
}

func (t *jobTracker) put(job model.GenerationJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.putLocked(job)
}

// update stores job unless a later snapshot is already known. Observer
// callbacks from different goroutines may arrive out of order.
func (t *jobTracker) update(job model.GenerationJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.jobs[job.ID]; ok && len(prev.Transitions) > len(job.Transitions) {
		return
	}
	t.putLocked(job)
}

func (t *jobTracker) putLocked(job model.GenerationJob) {
	if _, ok := t.jobs[job.ID]; !ok {
		if len(t.order) >= t.max {
			delete(t.jobs, t.order[0])
			t.order = t.order[1:]
		}
		t.order = append(t.order, job.ID)
	}
	t.jobs[job.ID] = job
}

func (t *jobTracker) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[id]; !ok {
		return
	}
	delete(t.jobs, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *jobTracker) get(id string) (model.GenerationJob, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return model.GenerationJob{}, false
	}
	return job.Clone(), true
}

// list returns up to limit jobs in state (any when empty), newest first.
func (t *jobTracker) list(state model.JobState, limit int) []model.GenerationJob {
	t.mu.RLock()
	out := make([]model.GenerationJob, 0, len(t.jobs))
	for _, job := range t.jobs {
		if state == "" || job.State == state {
			out = append(out, job.Clone())
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (t *jobTracker) counts() map[model.JobState]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[model.JobState]int)
	for _, job := range t.jobs {
		out[job.State]++
	}
	return out
}

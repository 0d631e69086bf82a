// Package dedupe defines the interface for request idempotency tracking.
//
// A caller-supplied request ID maps to the job ID created for it, so a
// retried POST returns the original job instead of starting a second
// generation and consuming a second avatar.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records request IDs to ensure at-most-once processing.
type Deduper interface {
	// Claim atomically records requestID -> jobID unless requestID is
	// already known. It returns the job ID bound to requestID and whether
	// it was already seen.
	Claim(ctx context.Context, requestID, jobID string) (string, bool, error)

	// Forget removes requestID so it can be retried. Used when a request was
	// claimed but could not be queued.
	Forget(ctx context.Context, requestID string) error

	// Size returns the number of tracked request IDs.
	Size(ctx context.Context) int64
}

type entry struct {
	requestID string
	jobID     string
}

// inMemoryDeduper implements Deduper with a map and an insertion-ordered
// list for FIFO eviction. maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Claim implements Deduper.
func (d *inMemoryDeduper) Claim(_ context.Context, requestID, jobID string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[requestID]; ok {
		return el.Value.(entry).jobID, true, nil
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.seen[requestID] = d.order.PushBack(entry{requestID: requestID, jobID: jobID})
	return jobID, false, nil
}

// Forget implements Deduper.
func (d *inMemoryDeduper) Forget(_ context.Context, requestID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[requestID]; ok {
		d.order.Remove(el)
		delete(d.seen, requestID)
	}
	return nil
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.seen, front.Value.(entry).requestID)
}

// Size implements Deduper.
func (d *inMemoryDeduper) Size(context.Context) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}

// Package dedupe provides idempotency tracking for client-supplied
// submission IDs.
package dedupe

import (
	"context"
	"sync"
)

// Default deduper configuration constants.
const (
	defaultMaxSize = 250000
)

// Deduper records seen submission IDs to ensure at-most-once recording.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID, allowing the submission to be retried.
	// Use it when a submission was recorded here but failed to persist.
	Unrecord(ctx context.Context, id string)

	// Size returns the current number of tracked IDs.
	Size() int
}

// inMemoryDeduper implements Deduper with a map plus a FIFO ring of IDs.
// When the ring is full the oldest ID is evicted, which bounds memory at
// the cost of re-admitting very old duplicates.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	ring    []string
	next    int
	maxSize int
}

// NewInMemoryDeduper creates a bounded in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]struct{}, d.maxSize)
	d.ring = make([]string, d.maxSize)

	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}

	// The ring slot being overwritten holds the oldest surviving ID.
	if old := d.ring[d.next]; old != "" {
		delete(d.seen, old)
	}
	d.ring[d.next] = id
	d.next = (d.next + 1) % d.maxSize
	d.seen[id] = struct{}{}

	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; !exists {
		return
	}
	delete(d.seen, id)
	for i, v := range d.ring {
		if v == id {
			d.ring[i] = ""
			break
		}
	}
}

func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

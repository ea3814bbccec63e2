// Package queue provides the bounded in-memory queue carrying score
// update jobs from write endpoints to the update workers.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/pacelane/stride/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 50000
)

// JobKind discriminates the two score update job shapes.
type JobKind string

const (
	// JobActivity re-scores a member on every club leaderboard the
	// activity touches.
	JobActivity JobKind = "activity"
	// JobProgress re-scores a participant on one challenge leaderboard.
	JobProgress JobKind = "progress"
)

// Job is one pending score update.
type Job struct {
	Kind         JobKind
	MemberID     string
	ActivityType string // set for activity jobs
	ChallengeID  string // set for progress jobs
	EnqueuedAt   time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. Returns false if the queue is full or closed;
	// the job is dropped, never blocked on.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns a channel delivering jobs until the queue closes.
	Dequeue(ctx context.Context) <-chan Job

	// Len returns the current number of pending jobs.
	Len(ctx context.Context) int

	// Close stops the queue. Pending jobs are still delivered.
	Close() error

	// IsClosed reports whether Close has been called.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)

	return q
}

// Enqueue adds a job without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueDrop()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now()
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.publishGauges()
		return true
	case <-ctx.Done():
		metrics.RecordQueueDrop()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueDrop()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that delivers jobs as they become available.
// The channel closes once the queue is closed and drained, or when ctx is
// cancelled.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			select {
			case out <- j:
				metrics.RecordQueueDequeue()
				q.publishGauges()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of pending jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.jobs)
	q.publishGauges()
	return size
}

// Close stops accepting jobs and lets consumers drain the remainder.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.jobs)
	q.closed = true

	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) publishGauges() {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Package worker drains the score update queue and applies incremental
// cache updates.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pacelane/stride/internal/adapters/mq/queue"
	"github.com/pacelane/stride/internal/domain/model"
	"github.com/pacelane/stride/internal/domain/scoring"
	"github.com/pacelane/stride/pkg/logger"
	"github.com/pacelane/stride/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Scorer computes one member's score for a leaderboard key.
type Scorer interface {
	MemberScore(ctx context.Context, key model.LeaderboardKey, memberID string, window model.DateRange) (scoring.Score, error)
}

// Updater writes a member's score into the cache.
type Updater interface {
	Upsert(ctx context.Context, key model.LeaderboardKey, memberID string, score float64) error
}

// ClubLister resolves the clubs a member belongs to.
type ClubLister interface {
	ListMemberClubs(ctx context.Context, memberID string) ([]string, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes score update jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown waits for the worker to stop.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	scorer  Scorer
	updater Updater
	clubs   ClubLister
	name    string

	// busy reports job start/end to the pool's gauges.
	busy func(delta int)

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, scorer Scorer, updater Updater, clubs ClubLister, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:   q,
		scorer:  scorer,
		updater: updater,
		clubs:   clubs,
		name:    "worker",
		busy:    func(int) {},
		done:    make(chan struct{}),
		logger:  logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop. It exits when ctx is canceled or the queue's
// job channel closes.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.busy(1)
			if err := w.processJob(ctx, job); err != nil {
				w.logger.Error(ctx, "job failed", logger.Error(err))
			}
			w.busy(-1)
		}
	}
}

// Shutdown waits for the worker loop to stop.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob fans one job out to every leaderboard key it touches. A
// failure on one key never blocks the others.
func (w *InMemoryWorker) processJob(ctx context.Context, job queue.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	keys, err := w.keysFor(ctx, job)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "membership_lookup")
		return fmt.Errorf("resolving keys for member %s: %w", job.MemberID, err)
	}

	var firstErr error
	for _, key := range keys {
		if err := w.refreshScore(ctx, key, job.MemberID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			w.logger.Error(ctx, "score refresh failed",
				logger.String("key", key.String()),
				logger.String("memberID", job.MemberID),
				logger.Error(err),
			)
		}
	}
	return firstErr
}

// keysFor expands a job into the leaderboard keys it invalidates. An
// activity touches the typed and overall boards of every club the member
// belongs to; a progress update touches one challenge board.
func (w *InMemoryWorker) keysFor(ctx context.Context, job queue.Job) ([]model.LeaderboardKey, error) {
	switch job.Kind {
	case queue.JobProgress:
		return []model.LeaderboardKey{{
			Scope:        model.ScopeChallenge,
			ScopeID:      job.ChallengeID,
			ActivityType: model.OverallActivityType,
		}}, nil
	case queue.JobActivity:
		clubIDs, err := w.clubs.ListMemberClubs(ctx, job.MemberID)
		if err != nil {
			return nil, err
		}
		keys := make([]model.LeaderboardKey, 0, len(clubIDs)*2)
		for _, clubID := range clubIDs {
			keys = append(keys,
				model.LeaderboardKey{Scope: model.ScopeClub, ScopeID: clubID, ActivityType: job.ActivityType},
				model.LeaderboardKey{Scope: model.ScopeClub, ScopeID: clubID, ActivityType: model.OverallActivityType},
			)
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (w *InMemoryWorker) refreshScore(ctx context.Context, key model.LeaderboardKey, memberID string) error {
	scoreStart := time.Now()
	score, err := w.scorer.MemberScore(ctx, key, memberID, model.DateRange{})
	metrics.RecordScoringLatency(float64(time.Since(scoreStart).Milliseconds()))
	if err != nil {
		metrics.RecordScoringError()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "scoring")
		return fmt.Errorf("scoring: %w", err)
	}

	if err := w.updater.Upsert(ctx, key, memberID, score.Points); err != nil {
		metrics.RecordLeaderboardError()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "cache_update")
		return fmt.Errorf("cache update: %w", err)
	}

	metrics.RecordLeaderboardUpdate()
	return nil
}

// Pool manages multiple workers draining one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	activeCount atomic.Int64

	logger logger.Logger
}

// NewPool creates a worker pool. A non-positive workerCount falls back to
// a CPU-derived default.
func NewPool(workerCount int, q Queue, scorer Scorer, updater Updater, clubs ClubLister) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}

	total := workerCount
	track := func(delta int) {
		active := pool.activeCount.Add(int64(delta))
		metrics.UpdateWorkerActiveCount(int(active))
		metrics.UpdateWorkerIdleCount(total - int(active))
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			q,
			scorer,
			updater,
			clubs,
			WithName("worker-"+strconv.Itoa(i)),
			withBusyTracker(track),
		)
	}

	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)

	return pool
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}

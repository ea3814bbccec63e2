// Package service wires the cache engine, the source of truth and the
// asynchronous update pipeline into the dependency bundle the HTTP API
// consumes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pacelane/stride/internal/adapters/http/api"
	updatequeue "github.com/pacelane/stride/internal/adapters/mq/queue"
	workerpool "github.com/pacelane/stride/internal/adapters/mq/worker"
	"github.com/pacelane/stride/internal/adapters/repository"
	"github.com/pacelane/stride/internal/adapters/storage"
	"github.com/pacelane/stride/internal/domain/dedupe"
	"github.com/pacelane/stride/internal/domain/model"
	"github.com/pacelane/stride/internal/domain/scoring"
	"github.com/pacelane/stride/internal/domain/types"
	"github.com/pacelane/stride/internal/engine"
	"github.com/pacelane/stride/internal/events"
	"github.com/pacelane/stride/pkg/logger"
	"github.com/pacelane/stride/pkg/metrics"
)

const rebuildPageSize = 50

// Service implements the API dependencies for the leaderboard cache.
type Service struct {
	mu sync.RWMutex

	// Source of truth. Always injected; the service never constructs it.
	source storage.Store

	// Core components, built on Start.
	treap   *repository.TreapStore
	scores  repository.ScoreStore
	scorer  *scoring.Aggregator
	engine  *engine.Engine
	deduper dedupe.Deduper
	queue   updatequeue.Queue
	pool    *workerpool.Pool
	bus     *events.Bus

	// Configuration
	cacheTTL           time.Duration
	cacheTimeout       time.Duration
	sourceTimeout      time.Duration
	queueSize          int
	workerCount        int
	rebuildParallelism int
	dedupeSize         int
	pointRates         map[string]float64

	// State
	started      bool
	dispatchDone chan struct{}
	unsubscribe  events.Unsubscribe

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCacheTTL sets how long a cached leaderboard stays live.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithCacheTimeout bounds cache reads before falling back to a rebuild.
func WithCacheTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTimeout = d
		}
	}
}

// WithSourceTimeout bounds rebuild reads against the source of truth.
func WithSourceTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sourceTimeout = d
		}
	}
}

// WithQueueSize sets the capacity of the update queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of update workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithRebuildParallelism bounds concurrent member scoring during rebuilds.
func WithRebuildParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rebuildParallelism = n
		}
	}
}

// WithDedupeSize sets the size of the client-id deduplication window.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithPointRates overrides overall scoring rates, keyed "type/unit".
func WithPointRates(rates map[string]float64) Option {
	return func(s *Service) {
		s.pointRates = rates
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a Service over the given source of truth.
func New(source storage.Store, opts ...Option) *Service {
	s := &Service{
		source:             source,
		cacheTTL:           10 * time.Minute,
		cacheTimeout:       250 * time.Millisecond,
		sourceTimeout:      5 * time.Second,
		queueSize:          50_000,
		workerCount:        runtime.NumCPU() * 4,
		rebuildParallelism: 8,
		dedupeSize:         250_000,
		dispatchDone:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds and starts the cache, scorer, engine and update pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.source == nil {
		return errors.New("service: source of truth is required")
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting leaderboard service")

	s.treap = repository.NewTreapStore(ctx,
		repository.WithTTL(s.cacheTTL),
	)
	s.scores = repository.NewBreakerStore(s.treap)
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.scorer = scoring.NewAggregator(s.source,
		scoring.WithRateOverrides(s.pointRates),
	)
	s.engine = engine.New(s.scores, s.source, s.scorer,
		engine.WithCacheTimeout(s.cacheTimeout),
		engine.WithSourceTimeout(s.sourceTimeout),
		engine.WithRebuildParallelism(s.rebuildParallelism),
	)
	s.queue = updatequeue.NewInMemoryQueue(
		updatequeue.WithCapacity(s.queueSize),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.scorer, s.scores, s.source)
	s.pool.Start(ctx)

	s.bus = events.NewBus()
	ch, unsub := s.bus.Subscribe()
	s.unsubscribe = unsub
	go s.dispatch(ctx, ch)

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("cacheTTL", s.cacheTTL),
	)

	return nil
}

// dispatch turns domain events into update jobs until the bus closes.
func (s *Service) dispatch(ctx context.Context, ch <-chan events.Event) {
	defer close(s.dispatchDone)

	for ev := range ch {
		job, ok := jobFor(ev)
		if !ok {
			continue
		}
		if !s.queue.Enqueue(ctx, job) {
			s.logger.Warn(ctx, "update job dropped",
				logger.String("kind", string(job.Kind)),
				logger.String("memberId", job.MemberID),
			)
		}
	}
}

// jobFor maps a bus event to its queue job.
func jobFor(ev events.Event) (updatequeue.Job, bool) {
	switch {
	case ev.Activity != nil:
		return updatequeue.Job{
			Kind:         updatequeue.JobActivity,
			MemberID:     ev.Activity.MemberID,
			ActivityType: ev.Activity.ActivityType,
		}, true
	case ev.Progress != nil:
		return updatequeue.Job{
			Kind:        updatequeue.JobProgress,
			MemberID:    ev.Progress.MemberID,
			ChallengeID: ev.Progress.ChallengeID,
		}, true
	default:
		return updatequeue.Job{}, false
	}
}

// Stop gracefully shuts down the update pipeline and the cache.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping leaderboard service")

	if s.bus != nil {
		_ = s.bus.Close()
	}
	select {
	case <-s.dispatchDone:
	case <-ctx.Done():
	}

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
		}
	}

	if s.treap != nil {
		_ = s.treap.Close()
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
}

// Leaderboard serves one leaderboard page through the cache engine.
func (s *Service) Leaderboard(ctx context.Context, q api.LeaderboardQuery) (types.LeaderboardResult, error) {
	key, err := leaderboardKey(q.Scope, q.ScopeID, q.ActivityType)
	if err != nil {
		return types.LeaderboardResult{}, err
	}

	res, err := s.engine.Get(ctx, key, q.Limit, q.Offset, q.ForceRebuild)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidQuery) {
			return types.LeaderboardResult{}, fmt.Errorf("%w: %w", api.ErrBadRequest, err)
		}
		return types.LeaderboardResult{}, err
	}

	return formatResult(res), nil
}

// RebuildLeaderboard forces a recompute from the source of truth and
// returns the fresh first page.
func (s *Service) RebuildLeaderboard(ctx context.Context, scope, scopeID, activityType string) (types.LeaderboardResult, error) {
	key, err := leaderboardKey(scope, scopeID, activityType)
	if err != nil {
		return types.LeaderboardResult{}, err
	}

	res, err := s.engine.Get(ctx, key, rebuildPageSize, 0, true)
	if err != nil {
		return types.LeaderboardResult{}, err
	}

	return formatResult(res), nil
}

// RecordActivity persists an activity and publishes the event that drives
// incremental cache updates. A repeated clientId acknowledges without
// re-recording.
func (s *Service) RecordActivity(ctx context.Context, sub api.ActivitySubmission) (api.ActivityAck, error) {
	if sub.ClientID != "" && s.deduper.SeenAndRecord(ctx, sub.ClientID) {
		metrics.RecordActivityDuplicate()
		return api.ActivityAck{Duplicate: true}, nil
	}

	activity := model.Activity{
		ID:         uuid.NewString(),
		MemberID:   sub.MemberID,
		Type:       sub.Type,
		Value:      sub.Value,
		Unit:       sub.Unit,
		RecordedAt: sub.RecordedAt,
	}

	if err := s.source.InsertActivity(ctx, activity); err != nil {
		if sub.ClientID != "" {
			s.deduper.Unrecord(ctx, sub.ClientID)
		}
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			return api.ActivityAck{}, fmt.Errorf("%w: activity %s", api.ErrDuplicate, activity.ID)
		case errors.Is(err, storage.ErrNotFound):
			return api.ActivityAck{}, fmt.Errorf("%w: member %s", api.ErrNotFound, sub.MemberID)
		default:
			return api.ActivityAck{}, fmt.Errorf("persisting activity: %w", err)
		}
	}

	metrics.RecordActivityRecorded()
	s.bus.Publish(ctx, events.Event{Activity: &events.ActivityRecorded{
		ActivityID:   activity.ID,
		MemberID:     activity.MemberID,
		ActivityType: activity.Type,
	}})

	return api.ActivityAck{ID: activity.ID}, nil
}

// UpdateProgress persists a challenge participant's current value and
// publishes the matching cache update event.
func (s *Service) UpdateProgress(ctx context.Context, challengeID, memberID string, currentValue float64) error {
	if err := s.source.UpdateParticipantProgress(ctx, challengeID, memberID, currentValue); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: participant %s in challenge %s", api.ErrNotFound, memberID, challengeID)
		}
		return fmt.Errorf("updating progress: %w", err)
	}

	metrics.RecordProgressUpdate()
	s.bus.Publish(ctx, events.Event{Progress: &events.ProgressUpdated{
		ChallengeID:  challengeID,
		MemberID:     memberID,
		CurrentValue: currentValue,
	}})

	return nil
}

// RemoveMember removes a member from a scope and drops the scope's cached
// leaderboards so the next read rebuilds without them.
func (s *Service) RemoveMember(ctx context.Context, scope, scopeID, memberID string) error {
	st := model.ScopeType(scope)
	if !st.Valid() {
		return fmt.Errorf("%w: scope %q", api.ErrBadRequest, scope)
	}

	if err := s.source.RemoveMember(ctx, st, scopeID, memberID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: member %s in %s %s", api.ErrNotFound, memberID, scope, scopeID)
		}
		return fmt.Errorf("removing member: %w", err)
	}

	s.engine.InvalidateScope(ctx, st, scopeID)
	return nil
}

// Stats exposes runtime counters for the stats endpoint.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"worker_count": s.workerCount,
		"queue_size":   0,
		"dedupe_size":  0,
		"cache_up":     false,
	}
	if !s.started {
		return stats
	}

	stats["queue_size"] = s.queue.Len(ctx)
	stats["queue_capacity"] = s.queueSize
	stats["dedupe_size"] = s.deduper.Size()
	stats["cache_up"] = s.scores.Ping(ctx) == nil
	return stats
}

// leaderboardKey validates and assembles a cache key from raw parts.
func leaderboardKey(scope, scopeID, activityType string) (model.LeaderboardKey, error) {
	st := model.ScopeType(scope)
	if !st.Valid() {
		return model.LeaderboardKey{}, fmt.Errorf("%w: scope %q", api.ErrBadRequest, scope)
	}
	if scopeID == "" {
		return model.LeaderboardKey{}, fmt.Errorf("%w: scopeId is required", api.ErrBadRequest)
	}
	if activityType == "" {
		activityType = model.OverallActivityType
	}
	// Challenge scoring is the participant's progress value regardless of
	// activity type, so typed challenge keys collapse onto the overall
	// board. This also keeps InvalidateScope exhaustive for challenges.
	if st == model.ScopeChallenge {
		activityType = model.OverallActivityType
	}
	return model.LeaderboardKey{Scope: st, ScopeID: scopeID, ActivityType: activityType}, nil
}

// formatResult maps an engine result onto the wire shape.
func formatResult(res engine.Result) types.LeaderboardResult {
	entries := make([]types.LeaderboardEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, types.LeaderboardEntry{
			Rank:          e.Rank,
			MemberID:      e.MemberID,
			Name:          e.Name,
			AvatarURL:     e.AvatarURL,
			Score:         e.Score,
			ActivityValue: e.ActivityValue,
			ActivityUnit:  e.ActivityUnit,
		})
	}
	return types.LeaderboardResult{
		Scope:        string(res.Key.Scope),
		ScopeID:      res.Key.ScopeID,
		ActivityType: res.Key.ActivityType,
		Entries:      entries,
		TotalMembers: res.TotalMembers,
		GeneratedAt:  res.GeneratedAt,
	}
}

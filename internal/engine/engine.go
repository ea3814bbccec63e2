// Package engine orchestrates the leaderboard cache: it serves rank queries
// from the sorted-score store, falls back to deterministic rebuild from the
// source of truth, and repopulates the cache best-effort.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pacelane/stride/internal/adapters/repository"
	"github.com/pacelane/stride/internal/domain/model"
	"github.com/pacelane/stride/internal/domain/scoring"
	"github.com/pacelane/stride/pkg/logger"
	"github.com/pacelane/stride/pkg/metrics"
)

// SourceStore is the slice of the source-of-truth contract the engine needs
// directly. Activity reads happen inside the scorer.
type SourceStore interface {
	ListMembers(ctx context.Context, scope model.ScopeType, scopeID string) ([]model.Member, error)
	GetProfileSummaries(ctx context.Context, memberIDs []string) ([]model.ProfileSummary, error)
}

// Scorer computes one member's score for a leaderboard key.
type Scorer interface {
	MemberScore(ctx context.Context, key model.LeaderboardKey, memberID string, window model.DateRange) (scoring.Score, error)
}

// Entry is one resolved leaderboard row.
type Entry struct {
	MemberID      string
	Name          string
	AvatarURL     string
	Score         float64
	Rank          int
	ActivityValue *float64
	ActivityUnit  *string
}

// Result is a fully resolved leaderboard window.
type Result struct {
	Key          model.LeaderboardKey
	Entries      []Entry
	TotalMembers int
	GeneratedAt  time.Time
}

// Engine wires the sorted-score store, the source of truth and the scorer.
type Engine struct {
	store  repository.ScoreStore
	source SourceStore
	scorer Scorer

	// The cache has a fallback path so its calls fail fast; the source has
	// none and gets more time.
	cacheTimeout  time.Duration
	sourceTimeout time.Duration

	rebuildParallelism int
	log                logger.Logger
}

// New constructs an Engine.
func New(store repository.ScoreStore, source SourceStore, scorer Scorer, opts ...Option) *Engine {
	e := &Engine{
		store:              store,
		source:             source,
		scorer:             scorer,
		cacheTimeout:       defaultCacheTimeout,
		sourceTimeout:      defaultSourceTimeout,
		rebuildParallelism: defaultRebuildParallelism,
		log:                logger.Get().Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get returns one leaderboard window. A cache miss or an unavailable cache
// backend triggers a rebuild instead of an empty or failed response; only a
// source-of-truth failure surfaces as an error.
func (e *Engine) Get(ctx context.Context, key model.LeaderboardKey, limit, offset int, forceRebuild bool) (Result, error) {
	if limit < 1 || offset < 0 {
		return Result{}, ErrInvalidQuery
	}

	var rebuilt []repository.MemberScore
	haveRebuilt := false

	rebuild := func() error {
		scores, err := e.Rebuild(ctx, key)
		if err != nil {
			return err
		}
		rebuilt = scores
		haveRebuilt = true
		return nil
	}

	if forceRebuild {
		if err := rebuild(); err != nil {
			return Result{}, err
		}
	} else {
		card, err := e.storeCardinality(ctx, key)
		switch {
		case err != nil:
			metrics.RecordCacheUnavailable()
			if err := rebuild(); err != nil {
				return Result{}, err
			}
		case card == 0:
			metrics.RecordCacheMiss()
			if err := rebuild(); err != nil {
				return Result{}, err
			}
		default:
			metrics.RecordCacheHit()
		}
	}

	var page []repository.MemberScore
	var total int
	if haveRebuilt {
		// Scores computed in this request are at least as fresh as the
		// cache and cannot have been truncated by a failed repopulation.
		total = len(rebuilt)
		page = sliceWindow(rebuilt, limit, offset)
	} else {
		var fromStore bool
		page, total, fromStore = e.storeWindow(ctx, key, limit, offset)
		if !fromStore {
			// Cache backend down: serve the window straight from the
			// rebuilt scores instead of surfacing the outage.
			if err := rebuild(); err != nil {
				return Result{}, err
			}
			total = len(rebuilt)
			page = sliceWindow(rebuilt, limit, offset)
		}
	}

	entries, err := e.resolveEntries(ctx, key, page, offset)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Key:          key,
		Entries:      entries,
		TotalMembers: total,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// storeCardinality queries the cache under the short cache timeout.
func (e *Engine) storeCardinality(ctx context.Context, key model.LeaderboardKey) (int, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cacheTimeout)
	defer cancel()
	return e.store.Cardinality(cctx, key)
}

// storeWindow reads one page plus the total from the cache. ok is false
// when the backend could not serve either call.
func (e *Engine) storeWindow(ctx context.Context, key model.LeaderboardKey, limit, offset int) (page []repository.MemberScore, total int, ok bool) {
	cctx, cancel := context.WithTimeout(ctx, e.cacheTimeout)
	defer cancel()

	entries, err := e.store.TopRange(cctx, key, limit, offset)
	if err != nil {
		return nil, 0, false
	}
	card, err := e.store.Cardinality(cctx, key)
	if err != nil {
		return nil, 0, false
	}
	return entries, card, true
}

func sliceWindow(scores []repository.MemberScore, limit, offset int) []repository.MemberScore {
	if offset >= len(scores) {
		return []repository.MemberScore{}
	}
	end := offset + limit
	if end > len(scores) {
		end = len(scores)
	}
	return scores[offset:end]
}

// resolveEntries attaches profile data in a single batched lookup and
// derives ranks from page position. Rank is offset + position + 1, which is
// total because the store's order is.
func (e *Engine) resolveEntries(ctx context.Context, key model.LeaderboardKey, page []repository.MemberScore, offset int) ([]Entry, error) {
	ids := make([]string, len(page))
	for i, ms := range page {
		ids[i] = ms.MemberID
	}

	sctx, cancel := context.WithTimeout(ctx, e.sourceTimeout)
	defer cancel()
	profiles, err := e.source.GetProfileSummaries(sctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve profiles: %w", err)
	}
	byID := make(map[string]model.ProfileSummary, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	var displayUnit string
	typed := key.Scope == model.ScopeClub && !key.IsOverall()
	if typed {
		displayUnit, _ = scoring.CanonicalUnit(key.ActivityType)
	}

	entries := make([]Entry, len(page))
	for i, ms := range page {
		entry := Entry{
			MemberID: ms.MemberID,
			Score:    ms.Score,
			Rank:     offset + i + 1,
		}
		if p, ok := byID[ms.MemberID]; ok {
			entry.Name = p.Name
			entry.AvatarURL = p.AvatarURL
		}
		if typed {
			value := ms.Score
			unit := displayUnit
			entry.ActivityValue = &value
			entry.ActivityUnit = &unit
		}
		entries[i] = entry
	}
	return entries, nil
}

// Rebuild recomputes every member's score from the source of truth, then
// clear-then-repopulates the cache so no stale member survives. The sorted
// scores are returned so callers can serve them even when the cache backend
// rejects the repopulation.
func (e *Engine) Rebuild(ctx context.Context, key model.LeaderboardKey) ([]repository.MemberScore, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRebuildDuration(float64(time.Since(start).Milliseconds()))
	}()
	metrics.RecordRebuild()

	sctx, cancel := context.WithTimeout(ctx, e.sourceTimeout)
	defer cancel()
	members, err := e.source.ListMembers(sctx, key.Scope, key.ScopeID)
	if err != nil {
		return nil, fmt.Errorf("list members for %s: %w", key, err)
	}

	scores := make([]repository.MemberScore, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.rebuildParallelism)
	for i, m := range members {
		i, m := i, m
		g.Go(func() error {
			s, err := e.scorer.MemberScore(gctx, key, m.ID, model.DateRange{})
			if err != nil {
				return fmt.Errorf("score member %s: %w", m.ID, err)
			}
			scores[i] = repository.MemberScore{MemberID: m.ID, Score: s.Points}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].MemberID < scores[j].MemberID
	})

	e.repopulate(ctx, key, scores)
	return scores, nil
}

// repopulate writes the rebuilt scores back to the cache, best effort.
func (e *Engine) repopulate(ctx context.Context, key model.LeaderboardKey, scores []repository.MemberScore) {
	cctx, cancel := context.WithTimeout(ctx, e.cacheTimeout)
	defer cancel()

	if err := e.store.Remove(cctx, key); err != nil {
		e.log.Debug(ctx, "cache repopulation skipped",
			logger.String("key", key.String()),
			logger.Error(err),
		)
		return
	}
	for _, ms := range scores {
		if err := e.store.Upsert(cctx, key, ms.MemberID, ms.Score); err != nil {
			metrics.RecordCacheWriteFailure()
			e.log.Warn(ctx, "cache repopulation aborted",
				logger.String("key", key.String()),
				logger.Error(err),
			)
			e.discard(ctx, key)
			return
		}
	}
}

// discard drops a half-written board. Without this, a later read would see
// a non-zero cardinality and serve the truncated board as warm until TTL.
func (e *Engine) discard(ctx context.Context, key model.LeaderboardKey) {
	dctx, cancel := context.WithTimeout(ctx, e.cacheTimeout)
	defer cancel()

	if err := e.store.Remove(dctx, key); err != nil {
		e.log.Warn(ctx, "partial board left to expire",
			logger.String("key", key.String()),
			logger.Error(err),
		)
	}
}

// InvalidateScope discards every cached leaderboard of a scope. Membership
// removal shifts everyone's rank, so the cheap incremental path cannot fix
// it; the next read rebuilds from source.
func (e *Engine) InvalidateScope(ctx context.Context, scope model.ScopeType, scopeID string) {
	keys := []model.LeaderboardKey{
		{Scope: scope, ScopeID: scopeID, ActivityType: model.OverallActivityType},
	}
	if scope == model.ScopeClub {
		for _, t := range scoring.KnownActivityTypes() {
			keys = append(keys, model.LeaderboardKey{Scope: scope, ScopeID: scopeID, ActivityType: t})
		}
	}

	cctx, cancel := context.WithTimeout(ctx, e.cacheTimeout)
	defer cancel()
	for _, key := range keys {
		if err := e.store.Remove(cctx, key); err != nil {
			// Each removal is independently best effort: a key that cannot
			// be dropped expires via TTL anyway.
			e.log.Debug(ctx, "invalidate skipped",
				logger.String("key", key.String()),
				logger.Error(err),
			)
		}
	}
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pacelane/stride/internal/domain/model"
	"github.com/pacelane/stride/pkg/logger"
	"github.com/pacelane/stride/pkg/metrics"
)

// Breaker defaults. The cache has a fallback path, so it trips fast.
const (
	breakerConsecutiveFailures = 5
	breakerOpenTimeout         = 10 * time.Second
	breakerHalfOpenRequests    = 3
)

// BreakerStore wraps a ScoreStore with a circuit breaker so a flapping
// backend fails fast instead of eating the cache timeout on every call.
// An open circuit surfaces as ErrUnavailable, which callers already treat
// as "rebuild from source".
type BreakerStore struct {
	inner ScoreStore
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps inner with breaker protection.
func NewBreakerStore(inner ScoreStore) *BreakerStore {
	log := logger.Get().Named("score-store-breaker")
	settings := gobreaker.Settings{
		Name:        "score-store",
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// Business outcomes are not backend failures.
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidRange)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(to.String())
			log.Warn(context.Background(), "circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	}
	return &BreakerStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

// execute runs fn through the breaker, mapping breaker rejections to
// ErrUnavailable.
func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return v, ErrUnavailable
	}
	return v, err
}

// Upsert implements ScoreStore.
func (b *BreakerStore) Upsert(ctx context.Context, key model.LeaderboardKey, memberID string, score float64) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.Upsert(ctx, key, memberID, score)
	})
	return err
}

// TopRange implements ScoreStore.
func (b *BreakerStore) TopRange(ctx context.Context, key model.LeaderboardKey, limit, offset int) ([]MemberScore, error) {
	v, err := b.execute(func() (any, error) {
		return b.inner.TopRange(ctx, key, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	entries, _ := v.([]MemberScore)
	return entries, nil
}

// RankOf implements ScoreStore.
func (b *BreakerStore) RankOf(ctx context.Context, key model.LeaderboardKey, memberID string) (int, error) {
	v, err := b.execute(func() (any, error) {
		return b.inner.RankOf(ctx, key, memberID)
	})
	if err != nil {
		return 0, err
	}
	rank, _ := v.(int)
	return rank, nil
}

// Cardinality implements ScoreStore.
func (b *BreakerStore) Cardinality(ctx context.Context, key model.LeaderboardKey) (int, error) {
	v, err := b.execute(func() (any, error) {
		return b.inner.Cardinality(ctx, key)
	})
	if err != nil {
		return 0, err
	}
	n, _ := v.(int)
	return n, nil
}

// Remove implements ScoreStore.
func (b *BreakerStore) Remove(ctx context.Context, key model.LeaderboardKey) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.Remove(ctx, key)
	})
	return err
}

// Ping implements ScoreStore.
func (b *BreakerStore) Ping(ctx context.Context) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.Ping(ctx)
	})
	return err
}

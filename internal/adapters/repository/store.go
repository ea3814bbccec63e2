// Package repository defines the sorted-score store contract and its
// in-memory implementation. The store is a cache mirror of relational
// aggregates: callers must tolerate absence, expiry and unavailability.
package repository

import (
	"context"

	"github.com/pacelane/stride/internal/domain/model"
)

// MemberScore is one element of a sorted-score structure.
type MemberScore struct {
	MemberID string
	Score    float64
}

// ScoreStore provides sorted-set semantics over leaderboard keys.
//
// Every operation may return ErrUnavailable when the backend is unreachable;
// callers degrade to the source of truth rather than failing the request.
// Per-member upserts are atomic, so concurrent updates for different members
// never interfere.
type ScoreStore interface {
	// Upsert inserts or replaces one member's score under key and refreshes
	// the key's expiry window.
	Upsert(ctx context.Context, key model.LeaderboardKey, memberID string, score float64) error

	// TopRange returns up to limit entries starting at offset, ordered by
	// score descending with ties broken by member id ascending.
	TopRange(ctx context.Context, key model.LeaderboardKey, limit, offset int) ([]MemberScore, error)

	// RankOf returns a member's 1-based rank under key.
	// Returns ErrNotFound when the member is not present.
	RankOf(ctx context.Context, key model.LeaderboardKey, memberID string) (int, error)

	// Cardinality returns the number of members under key. A missing or
	// expired key reports zero.
	Cardinality(ctx context.Context, key model.LeaderboardKey) (int, error)

	// Remove discards the whole sorted structure for key.
	Remove(ctx context.Context, key model.LeaderboardKey) error

	// Ping is the cheap liveness probe gating cache usage.
	Ping(ctx context.Context) error
}

// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// ScopeType selects the unit over which a leaderboard is computed.
type ScopeType string

// Supported scope types.
const (
	ScopeClub      ScopeType = "club"
	ScopeChallenge ScopeType = "challenge"
)

// Valid reports whether the scope type is one of the supported values.
func (s ScopeType) Valid() bool {
	return s == ScopeClub || s == ScopeChallenge
}

// OverallActivityType is the sentinel activity type meaning the aggregate
// score across all activity types.
const OverallActivityType = "overall"

// LeaderboardKey identifies exactly one sorted-score structure:
// a scope (club or challenge) plus an activity type or the overall sentinel.
type LeaderboardKey struct {
	Scope        ScopeType
	ScopeID      string
	ActivityType string
}

// String renders the composite cache key. Scope ids are UUIDs, so the colon
// separator cannot collide with id content.
func (k LeaderboardKey) String() string {
	return fmt.Sprintf("lb:%s:%s:%s", k.Scope, k.ScopeID, k.ActivityType)
}

// Overall returns the same scope keyed by the overall sentinel.
func (k LeaderboardKey) Overall() LeaderboardKey {
	return LeaderboardKey{Scope: k.Scope, ScopeID: k.ScopeID, ActivityType: OverallActivityType}
}

// IsOverall reports whether the key addresses the aggregate leaderboard.
func (k LeaderboardKey) IsOverall() bool {
	return k.ActivityType == OverallActivityType
}

// Activity is a single recorded activity owned by the relational store.
type Activity struct {
	ID         string
	MemberID   string
	Type       string  // e.g. "run", "ride", "swim"
	Value      float64 // magnitude in Unit
	Unit       string  // e.g. "km", "mi", "m", "min"
	RecordedAt time.Time
}

// Member is a scope participant as listed by the source of truth.
type Member struct {
	ID       string
	JoinedAt time.Time
}

// ParticipantProgress is a challenge participant's current standing,
// written by the progress-update path and read during aggregation.
type ParticipantProgress struct {
	CurrentValue       float64
	ProgressPercentage float64
}

// ProfileSummary carries the display fields resolved in one batched lookup.
type ProfileSummary struct {
	ID        string
	Name      string
	AvatarURL string
}

// DateRange bounds an activity query. The zero value means all-time.
type DateRange struct {
	From time.Time
	To   time.Time
}

// IsZero reports whether the range is unbounded.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

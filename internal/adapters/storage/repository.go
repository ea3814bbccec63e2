// Package storage defines the source-of-truth contract the cache engine
// reads from. The relational store owns memberships, activities and
// participant progress; the engine never mutates rows it does not own.
package storage

import (
	"context"
	"errors"

	"github.com/pacelane/stride/internal/domain/model"
)

// Sentinel kinds for source-of-truth errors.
var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert collides with an existing id.
	ErrDuplicate = errors.New("record already exists")
)

// Store is the authoritative relational contract. Failures here are hard
// errors: there is no further fallback behind the source of truth.
type Store interface {
	// ListMembers returns the full membership of a scope.
	ListMembers(ctx context.Context, scope model.ScopeType, scopeID string) ([]model.Member, error)

	// ListActivities returns a member's activities, optionally bounded by a
	// date range and filtered to one activity type (empty means all types).
	ListActivities(ctx context.Context, memberID string, r model.DateRange, activityType string) ([]model.Activity, error)

	// GetParticipantProgress returns a challenge participant's progress.
	// Returns ErrNotFound when the member does not participate.
	GetParticipantProgress(ctx context.Context, challengeID, memberID string) (model.ParticipantProgress, error)

	// GetProfileSummaries resolves display data for many members in one
	// batched query.
	GetProfileSummaries(ctx context.Context, memberIDs []string) ([]model.ProfileSummary, error)

	// ListMemberClubs returns the club ids a member belongs to. Incremental
	// update fan-out uses this to find every affected leaderboard.
	ListMemberClubs(ctx context.Context, memberID string) ([]string, error)

	// InsertActivity persists a new activity row.
	// Returns ErrDuplicate when the id already exists.
	InsertActivity(ctx context.Context, a model.Activity) error

	// UpdateParticipantProgress sets a challenge participant's current value
	// and recomputes their progress percentage against the challenge target.
	UpdateParticipantProgress(ctx context.Context, challengeID, memberID string, currentValue float64) error

	// RemoveMember removes a member from a scope.
	RemoveMember(ctx context.Context, scope model.ScopeType, scopeID, memberID string) error
}

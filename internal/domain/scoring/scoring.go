// Package scoring computes a member's leaderboard score from authoritative
// activity data. It is the single aggregation path used by both incremental
// cache updates and full rebuilds, so the two can never disagree.
package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/pacelane/stride/internal/domain/model"
)

// ActivitySource abstracts the source-of-truth reads aggregation needs.
type ActivitySource interface {
	// ListActivities returns a member's qualifying activities. An empty
	// activityType means all types.
	ListActivities(ctx context.Context, memberID string, r model.DateRange, activityType string) ([]model.Activity, error)

	// GetParticipantProgress returns a challenge participant's current
	// progress value.
	GetParticipantProgress(ctx context.Context, challengeID, memberID string) (model.ParticipantProgress, error)
}

// Score is the aggregation output for one (member, leaderboard key) pair.
type Score struct {
	// Points is the sortable score. For typed club leaderboards it equals
	// the total activity value in the canonical unit.
	Points float64

	// ActivityValue and ActivityUnit carry the raw display total when a
	// specific activity type was requested.
	ActivityValue float64
	ActivityUnit  string
	Typed         bool
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithRates replaces the points conversion table.
func WithRates(rates RateTable) Option {
	return func(a *Aggregator) {
		if len(rates) > 0 {
			a.rates = rates
		}
	}
}

// WithRateOverrides layers per-pair overrides onto the default table.
// Keys use the "type/unit" form, e.g. "run/km".
func WithRateOverrides(overrides map[string]float64) Option {
	return func(a *Aggregator) {
		for k, rate := range overrides {
			activityType, unit, ok := strings.Cut(k, "/")
			if !ok || rate <= 0 {
				continue
			}
			a.rates[RateKey{ActivityType: activityType, Unit: unit}] = rate
		}
	}
}

// Aggregator implements the score aggregation function over an
// ActivitySource and a conversion-rate table.
type Aggregator struct {
	source ActivitySource
	rates  RateTable
}

// NewAggregator builds an Aggregator with the default rate table.
func NewAggregator(source ActivitySource, opts ...Option) *Aggregator {
	a := &Aggregator{
		source: source,
		rates:  DefaultRates(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MemberScore computes the score one member contributes to the given
// leaderboard key.
//
// Club and challenge scopes deliberately use distinct aggregation policies:
// club scores sum over all matching activities, challenge scores are the
// participant's latest progress value maintained by the progress-update path.
func (a *Aggregator) MemberScore(ctx context.Context, key model.LeaderboardKey, memberID string, window model.DateRange) (Score, error) {
	if key.Scope == model.ScopeChallenge {
		progress, err := a.source.GetParticipantProgress(ctx, key.ScopeID, memberID)
		if err != nil {
			return Score{}, fmt.Errorf("participant progress for %s: %w", memberID, err)
		}
		return Score{Points: progress.CurrentValue}, nil
	}

	filter := key.ActivityType
	if key.IsOverall() {
		filter = ""
	}
	activities, err := a.source.ListActivities(ctx, memberID, window, filter)
	if err != nil {
		return Score{}, fmt.Errorf("list activities for %s: %w", memberID, err)
	}

	if key.IsOverall() {
		return Score{Points: a.sumPoints(activities)}, nil
	}
	return a.sumTyped(key.ActivityType, activities), nil
}

// sumPoints converts every activity to points via the rate table. Unknown
// (type, unit) pairs contribute zero; the sum never fails mid-accumulation.
func (a *Aggregator) sumPoints(activities []model.Activity) float64 {
	var total float64
	for _, act := range activities {
		total += act.Value * a.rates[RateKey{ActivityType: act.Type, Unit: act.Unit}]
	}
	return total
}

// sumTyped accumulates raw activity values normalized to the type's
// canonical unit. Unrecognized units contribute zero, matching the points
// path's robustness.
func (a *Aggregator) sumTyped(activityType string, activities []model.Activity) Score {
	unit, known := CanonicalUnit(activityType)
	score := Score{ActivityUnit: unit, Typed: true}
	if !known {
		return score
	}
	for _, act := range activities {
		if factor, ok := factorTo(unit, act.Unit); ok {
			score.ActivityValue += act.Value * factor
		}
	}
	score.Points = score.ActivityValue
	return score
}

package scoring

import "sort"

// RateKey identifies one conversion rate in the points table.
type RateKey struct {
	ActivityType string
	Unit         string
}

// RateTable maps (activityType, unit) to points per unit. Pairs absent from
// the table contribute zero points so one bad record cannot abort a sum.
type RateTable map[RateKey]float64

// canonicalUnits maps each known activity type to the unit its typed
// leaderboard accumulates in. Distance activities normalize to meters,
// duration activities to minutes.
var canonicalUnits = map[string]string{
	"run":     "m",
	"ride":    "m",
	"swim":    "m",
	"walk":    "m",
	"hike":    "m",
	"workout": "min",
	"yoga":    "min",
}

// unitFactors holds fixed linear factors from a recorded unit to each
// canonical unit. Keyed by canonical unit first so a duration unit can never
// leak into a distance sum.
var unitFactors = map[string]map[string]float64{
	"m": {
		"m":  1,
		"km": 1000,
		"mi": 1609.344,
	},
	"min": {
		"min": 1,
		"hr":  60,
		"sec": 1.0 / 60,
	},
}

// factorTo returns the multiplier converting unit into canonical, or false
// when the unit does not belong to the canonical unit's dimension.
func factorTo(canonical, unit string) (float64, bool) {
	f, ok := unitFactors[canonical][unit]
	return f, ok
}

// defaultRates is the flat points conversion table used for overall
// leaderboards.
var defaultRates = RateTable{
	{"run", "m"}:       0.01,
	{"run", "km"}:      10,
	{"run", "mi"}:      16.09344,
	{"ride", "m"}:      0.004,
	{"ride", "km"}:     4,
	{"ride", "mi"}:     6.437376,
	{"swim", "m"}:      0.04,
	{"swim", "km"}:     40,
	{"walk", "m"}:      0.005,
	{"walk", "km"}:     5,
	{"walk", "mi"}:     8.04672,
	{"hike", "km"}:     6,
	{"hike", "mi"}:     9.656064,
	{"workout", "min"}: 1,
	{"workout", "hr"}:  60,
	{"yoga", "min"}:    0.8,
}

// DefaultRates returns a copy of the built-in points table.
func DefaultRates() RateTable {
	out := make(RateTable, len(defaultRates))
	for k, v := range defaultRates {
		out[k] = v
	}
	return out
}

// CanonicalUnit returns the accumulation unit for an activity type and
// whether the type is known.
func CanonicalUnit(activityType string) (string, bool) {
	u, ok := canonicalUnits[activityType]
	return u, ok
}

// KnownActivityTypes returns the activity types with a canonical unit,
// sorted for deterministic iteration. Scope invalidation uses this to
// enumerate every typed leaderboard a scope can have.
func KnownActivityTypes() []string {
	out := make([]string, 0, len(canonicalUnits))
	for t := range canonicalUnits {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

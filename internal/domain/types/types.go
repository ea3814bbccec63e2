// Package types declares the wire shapes returned by the query API.
// All JSON field names are camelCase.
package types

import "time"

// LeaderboardEntry is one ranked row. Rank is derived from position within
// the sorted structure at read time, never stored.
type LeaderboardEntry struct {
	Rank          int      `json:"rank"`
	MemberID      string   `json:"memberId"`
	Name          string   `json:"name"`
	AvatarURL     string   `json:"avatarUrl,omitempty"`
	Score         float64  `json:"score"`
	ActivityValue *float64 `json:"activityValue"`
	ActivityUnit  *string  `json:"activityUnit"`
}

// LeaderboardResult is the full response for one leaderboard window.
type LeaderboardResult struct {
	Scope        string             `json:"scope"`
	ScopeID      string             `json:"scopeId"`
	ActivityType string             `json:"activityType"`
	Entries      []LeaderboardEntry `json:"entries"`
	TotalMembers int                `json:"totalMembers"`
	GeneratedAt  time.Time          `json:"generatedAt"`
}

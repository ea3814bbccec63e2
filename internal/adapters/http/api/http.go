// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/pacelane/stride/internal/domain/types"
)

// LeaderboardQuery carries the parsed parameters of a leaderboard read.
type LeaderboardQuery struct {
	Scope        string
	ScopeID      string
	ActivityType string
	Limit        int
	Offset       int
	ForceRebuild bool
}

// ActivitySubmission is a validated activity recording request.
type ActivitySubmission struct {
	MemberID   string
	Type       string
	Value      float64
	Unit       string
	RecordedAt time.Time
	ClientID   string
}

// ActivityAck reports the outcome of an activity submission.
type ActivityAck struct {
	ID        string
	Duplicate bool
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Leaderboard serves a leaderboard page, rebuilding the cache when
	// needed.
	Leaderboard(ctx context.Context, q LeaderboardQuery) (types.LeaderboardResult, error)

	// RebuildLeaderboard recomputes one leaderboard from the source of
	// truth and returns the fresh page.
	RebuildLeaderboard(ctx context.Context, scope, scopeID, activityType string) (types.LeaderboardResult, error)

	// RecordActivity persists an activity and schedules cache updates.
	RecordActivity(ctx context.Context, sub ActivitySubmission) (ActivityAck, error)

	// UpdateProgress persists a challenge participant's progress and
	// schedules the cache update.
	UpdateProgress(ctx context.Context, challengeID, memberID string, currentValue float64) error

	// RemoveMember removes a member from a scope and invalidates its
	// cached leaderboards.
	RemoveMember(ctx context.Context, scope, scopeID, memberID string) error

	// Stats exposes service runtime statistics.
	Stats(ctx context.Context) map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	activitiesHandler  *ActivitiesHandler
	challengesHandler  *ChallengesHandler
	clubsHandler       *ClubsHandler
}

// NewServer creates an API server with all handlers.
func NewServer(deps Dependencies, maxLeaderboardLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLeaderboardLimit),
		activitiesHandler:  NewActivitiesHandler(deps),
		challengesHandler:  NewChallengesHandler(deps),
		clubsHandler:       NewClubsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/v1/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/v1/leaderboard/rebuild", MetricsMiddleware(s.leaderboardHandler.HandleRebuild, "leaderboard_rebuild"))
	mux.HandleFunc("/v1/activities", MetricsMiddleware(s.activitiesHandler.HandlePostActivity, "activities"))
	mux.HandleFunc("/v1/challenges/", MetricsMiddleware(s.challengesHandler.Handle, "challenges"))
	mux.HandleFunc("/v1/clubs/", MetricsMiddleware(s.clubsHandler.Handle, "clubs"))
}

type ackResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDependencyError translates service-layer failures into HTTP codes.
func writeDependencyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrNotFound) || isNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrDuplicate):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// isNotFound catches upstream not-found conditions that were not mapped to
// the package sentinel.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}

// pathParts splits a path below prefix into its segments.
func pathParts(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pacelane/stride/internal/domain/model"
	"github.com/pacelane/stride/internal/domain/types"
)

// Default paging constants.
const (
	defaultLeaderboardLimit = 50
)

// LeaderboardDependencies defines the interface for leaderboard reads.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, q LeaderboardQuery) (types.LeaderboardResult, error)
	RebuildLeaderboard(ctx context.Context, scope, scopeID, activityType string) (types.LeaderboardResult, error)
}

// LeaderboardHandler handles leaderboard reads and rebuilds.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	if maxLimit < 1 {
		maxLimit = defaultLeaderboardLimit
	}
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /v1/leaderboard requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q, err := h.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	result, err := h.deps.Leaderboard(r.Context(), q)
	if err != nil {
		writeDependencyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *LeaderboardHandler) parseQuery(r *http.Request) (LeaderboardQuery, error) {
	params := r.URL.Query()

	q := LeaderboardQuery{
		Scope:        strings.TrimSpace(params.Get("scope")),
		ScopeID:      strings.TrimSpace(params.Get("scopeId")),
		ActivityType: strings.TrimSpace(params.Get("activityType")),
		Limit:        defaultLeaderboardLimit,
	}

	if !model.ScopeType(q.Scope).Valid() {
		return q, fmt.Errorf("%w: scope must be club or challenge", ErrBadRequest)
	}
	if q.ScopeID == "" {
		return q, fmt.Errorf("%w: missing scopeId", ErrBadRequest)
	}
	if q.ActivityType == "" {
		q.ActivityType = model.OverallActivityType
	}

	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest)
		}
		if n > h.maxLimit {
			return q, fmt.Errorf("%w: limit exceeds maximum %d", ErrBadRequest, h.maxLimit)
		}
		q.Limit = n
	}

	if raw := params.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, fmt.Errorf("%w: offset must be a non-negative integer", ErrBadRequest)
		}
		q.Offset = n
	}

	if raw := params.Get("force"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			return q, fmt.Errorf("%w: force must be a boolean", ErrBadRequest)
		}
		q.ForceRebuild = force
	}

	return q, nil
}

// rebuildRequest mirrors the body of POST /v1/leaderboard/rebuild.
type rebuildRequest struct {
	Scope        string `json:"scope"`
	ScopeID      string `json:"scopeId"`
	ActivityType string `json:"activityType"`
}

func (req rebuildRequest) validate() error {
	if !model.ScopeType(req.Scope).Valid() {
		return errors.New("scope must be club or challenge")
	}
	if strings.TrimSpace(req.ScopeID) == "" {
		return errors.New("missing scopeId")
	}
	return nil
}

// HandleRebuild handles POST /v1/leaderboard/rebuild requests.
func (h *LeaderboardHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req rebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.ActivityType == "" {
		req.ActivityType = model.OverallActivityType
	}

	result, err := h.deps.RebuildLeaderboard(r.Context(), req.Scope, req.ScopeID, req.ActivityType)
	if err != nil {
		writeDependencyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pacelane/stride/internal/domain/model"
)

// ChallengeDependencies defines the interface for challenge operations.
type ChallengeDependencies interface {
	UpdateProgress(ctx context.Context, challengeID, memberID string, currentValue float64) error
	RemoveMember(ctx context.Context, scope, scopeID, memberID string) error
}

// ChallengesHandler routes requests below /v1/challenges/.
type ChallengesHandler struct {
	deps ChallengeDependencies
}

// NewChallengesHandler creates a challenges handler.
func NewChallengesHandler(deps ChallengeDependencies) *ChallengesHandler {
	return &ChallengesHandler{deps: deps}
}

// progressRequest mirrors the body of PUT /v1/challenges/{id}/progress.
type progressRequest struct {
	MemberID     string  `json:"memberId"`
	CurrentValue float64 `json:"currentValue"`
}

func (p progressRequest) validate() error {
	switch {
	case strings.TrimSpace(p.MemberID) == "":
		return errors.New("missing memberId")
	case p.CurrentValue < 0:
		return errors.New("currentValue must not be negative")
	}
	return nil
}

// Handle dispatches challenge subroutes:
//
//	PUT    /v1/challenges/{id}/progress
//	DELETE /v1/challenges/{id}/participants/{memberId}
func (h *ChallengesHandler) Handle(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/challenges/")

	switch {
	case len(parts) == 2 && parts[1] == "progress" && r.Method == http.MethodPut:
		h.handlePutProgress(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "participants" && r.Method == http.MethodDelete:
		h.handleRemoveParticipant(w, r, parts[0], parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (h *ChallengesHandler) handlePutProgress(w http.ResponseWriter, r *http.Request, challengeID string) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	if err := h.deps.UpdateProgress(r.Context(), challengeID, req.MemberID, req.CurrentValue); err != nil {
		writeDependencyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "ok"})
}

func (h *ChallengesHandler) handleRemoveParticipant(w http.ResponseWriter, r *http.Request, challengeID, memberID string) {
	err := h.deps.RemoveMember(r.Context(), string(model.ScopeChallenge), challengeID, memberID)
	if err != nil {
		writeDependencyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClubDependencies defines the interface for club membership operations.
type ClubDependencies interface {
	RemoveMember(ctx context.Context, scope, scopeID, memberID string) error
}

// ClubsHandler routes requests below /v1/clubs/.
type ClubsHandler struct {
	deps ClubDependencies
}

// NewClubsHandler creates a clubs handler.
func NewClubsHandler(deps ClubDependencies) *ClubsHandler {
	return &ClubsHandler{deps: deps}
}

// Handle dispatches club subroutes:
//
//	DELETE /v1/clubs/{id}/members/{memberId}
func (h *ClubsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/clubs/")

	if len(parts) != 3 || parts[1] != "members" || r.Method != http.MethodDelete {
		http.NotFound(w, r)
		return
	}

	if err := h.deps.RemoveMember(r.Context(), string(model.ScopeClub), parts[0], parts[2]); err != nil {
		writeDependencyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// ActivityDependencies defines the interface for activity submission.
type ActivityDependencies interface {
	RecordActivity(ctx context.Context, sub ActivitySubmission) (ActivityAck, error)
}

// ActivitiesHandler handles activity submissions.
type ActivitiesHandler struct {
	deps ActivityDependencies
}

// NewActivitiesHandler creates an activities handler.
func NewActivitiesHandler(deps ActivityDependencies) *ActivitiesHandler {
	return &ActivitiesHandler{deps: deps}
}

// activityRequest mirrors the body of POST /v1/activities.
type activityRequest struct {
	MemberID   string  `json:"memberId"`
	Type       string  `json:"type"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	RecordedAt string  `json:"recordedAt"`
	ClientID   string  `json:"clientId"`
}

func (a activityRequest) validate() error {
	switch {
	case strings.TrimSpace(a.MemberID) == "":
		return errors.New("missing memberId")
	case strings.TrimSpace(a.Type) == "":
		return errors.New("missing type")
	case strings.TrimSpace(a.Unit) == "":
		return errors.New("missing unit")
	case a.Value <= 0:
		return errors.New("value must be positive")
	}
	if a.RecordedAt != "" {
		if _, err := time.Parse(time.RFC3339, a.RecordedAt); err != nil {
			return errors.New("invalid recordedAt; must be RFC3339")
		}
	}
	return nil
}

// HandlePostActivity handles POST /v1/activities requests.
func (h *ActivitiesHandler) HandlePostActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	recordedAt := time.Now().UTC()
	if req.RecordedAt != "" {
		recordedAt, _ = time.Parse(time.RFC3339, req.RecordedAt)
	}

	ack, err := h.deps.RecordActivity(r.Context(), ActivitySubmission{
		MemberID:   req.MemberID,
		Type:       req.Type,
		Value:      req.Value,
		Unit:       req.Unit,
		RecordedAt: recordedAt,
		ClientID:   req.ClientID,
	})
	if err != nil {
		writeDependencyError(w, err)
		return
	}

	if ack.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", ID: ack.ID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ID: ack.ID, Duplicate: false})
}

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/okian/sightline/internal/domain/model"
)

// TrackDependencies defines the interface for manual tracking updates.
type TrackDependencies interface {
	ApplyTrackingUpdate(ctx context.Context, u model.TrackingUpdate)
}

// TrackHandler accepts tracking updates from external sources.
type TrackHandler struct {
	deps TrackDependencies
}

// NewTrackHandler creates a new track handler.
func NewTrackHandler(deps TrackDependencies) *TrackHandler {
	return &TrackHandler{deps: deps}
}

type trackResponse struct {
	Status       string `json:"status"`
	ObjectsCount int    `json:"objects_count"`
}

// HandlePostTrack handles POST /track requests.
func (h *TrackHandler) HandlePostTrack(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_track"
	var update model.TrackingUpdate
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSightingBody)).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := update.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	h.deps.ApplyTrackingUpdate(r.Context(), update)
	writeJSON(w, http.StatusOK, trackResponse{Status: "updated", ObjectsCount: len(update.Objects)})
}

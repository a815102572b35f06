package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/sightline/internal/domain/confidence"
	"github.com/okian/sightline/internal/domain/model"
)

// SessionsDependencies defines the interface for confidence lookups.
type SessionsDependencies interface {
	SessionConfidence(ctx context.Context, sessionID string) (model.SessionConfidence, error)
}

// SessionsHandler serves aggregated session confidence.
type SessionsHandler struct {
	deps SessionsDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionsDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleGetConfidence handles GET /sessions/{session_id}/confidence requests.
func (h *SessionsHandler) HandleGetConfidence(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session_confidence"
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	snap, err := h.deps.SessionConfidence(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, confidence.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

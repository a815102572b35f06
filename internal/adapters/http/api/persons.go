package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/domain/tracking"
)

// PersonsDependencies defines the interface for track lookups.
type PersonsDependencies interface {
	Track(ctx context.Context, personID string) (model.PersonTrack, error)
}

// PersonsHandler serves person tracks.
type PersonsHandler struct {
	deps PersonsDependencies
}

// NewPersonsHandler creates a new persons handler.
func NewPersonsHandler(deps PersonsDependencies) *PersonsHandler {
	return &PersonsHandler{deps: deps}
}

// HandleGetPerson handles GET /persons/{person_id} requests.
func (h *PersonsHandler) HandleGetPerson(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_person"
	personID := chi.URLParam(r, "person_id")
	if personID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	track, err := h.deps.Track(r.Context(), personID)
	if err != nil {
		if errors.Is(err, tracking.ErrTrackNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Message: "Person not found"})
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

package api

import (
	"context"
	"io"
	"net/http"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/metrics"
)

const maxSightingBody = 1 << 20

// EventDependencies defines the interface for sighting ingestion.
type EventDependencies interface {
	Enqueue(ctx context.Context, e model.SightingEvent) bool
}

// EventsHandler handles sighting ingestion.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type ackResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
}

// HandlePostSighting handles POST /sightings requests.
func (h *EventsHandler) HandlePostSighting(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_sighting"
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSightingBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	event, err := model.DecodeSighting(body)
	if err != nil {
		metrics.RecordSightingDropped("malformed")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if ok := h.deps.Enqueue(r.Context(), event); !ok {
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	metrics.RecordSightingReceived("http")
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

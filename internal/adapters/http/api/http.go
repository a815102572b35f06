// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/sightline/internal/domain/broadcast"
	"github.com/okian/sightline/internal/domain/model"
)

const defaultWSWriteTimeout = 5 * time.Second

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Enqueue hands a sighting to the pipeline. Returns false on backpressure.
	Enqueue(ctx context.Context, e model.SightingEvent) bool

	// Track returns a person track or an error wrapping tracking.ErrTrackNotFound.
	Track(ctx context.Context, personID string) (model.PersonTrack, error)
	// SessionConfidence returns a session snapshot or an error wrapping
	// confidence.ErrSessionNotFound.
	SessionConfidence(ctx context.Context, sessionID string) (model.SessionConfidence, error)

	// ApplyTrackingUpdate records externally observed positions and
	// broadcasts the update.
	ApplyTrackingUpdate(ctx context.Context, u model.TrackingUpdate)

	// Hub is where live subscribers register.
	Hub() *broadcast.Hub
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	personsHandler  *PersonsHandler
	sessionsHandler *SessionsHandler
	trackHandler    *TrackHandler
	wsHandler       *WSHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		eventsHandler:   NewEventsHandler(deps),
		personsHandler:  NewPersonsHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
		trackHandler:    NewTrackHandler(deps),
		wsHandler:       NewWSHandler(deps, defaultWSWriteTimeout),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleMetrics, "healthz"))
	r.Get("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Post("/sightings", MetricsMiddleware(s.eventsHandler.HandlePostSighting, "sightings"))
	r.Post("/track", MetricsMiddleware(s.trackHandler.HandlePostTrack, "track"))
	r.Get("/persons/{person_id}", MetricsMiddleware(s.personsHandler.HandleGetPerson, "persons"))
	r.Get("/sessions/{session_id}/confidence", MetricsMiddleware(s.sessionsHandler.HandleGetConfidence, "sessions"))
	r.Get("/ws/tracking", MetricsMiddleware(s.wsHandler.HandleSubscribe, "ws_tracking"))
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

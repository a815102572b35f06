package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/sightline/internal/domain/broadcast"
)

// WSDependencies defines the interface for live subscriptions.
type WSDependencies interface {
	Hub() *broadcast.Hub
}

// WSHandler upgrades clients to tracking-update subscribers.
type WSHandler struct {
	deps         WSDependencies
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(deps WSDependencies, writeTimeout time.Duration) *WSHandler {
	return &WSHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			// dashboards are served from other origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
	}
}

// HandleSubscribe handles GET /ws/tracking. It blocks for the lifetime of
// the connection.
func (h *WSHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		return
	}
	broadcast.NewWSSubscriber(conn, h.writeTimeout).Serve(r.Context(), h.deps.Hub())
}

package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
)

const (
	defaultWriteTimeout = 5 * time.Second
	messageTypePong     = "pong"
)

// ErrSubscriberClosed is returned by Send after the connection has gone away.
var ErrSubscriberClosed = errors.New("subscriber closed")

// Pong is the keep-alive reply to any text frame a client sends.
type Pong struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// WSSubscriber delivers envelopes as JSON text frames.
type WSSubscriber struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	// gorilla allows one concurrent writer.
	mu     sync.Mutex
	closed bool
}

// NewWSSubscriber wraps an upgraded connection.
func NewWSSubscriber(conn *websocket.Conn, writeTimeout time.Duration) *WSSubscriber {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &WSSubscriber{id: uuid.NewString(), conn: conn, writeTimeout: writeTimeout}
}

func (s *WSSubscriber) ID() string { return s.id }

func (s *WSSubscriber) Send(_ context.Context, env model.Envelope) error {
	return s.writeJSON(env)
}

func (s *WSSubscriber) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSubscriberClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Serve registers the subscriber with h and answers client frames with a
// pong until the connection fails or ctx is done. It always unsubscribes
// and closes the connection before returning.
func (s *WSSubscriber) Serve(ctx context.Context, h *Hub) {
	ctx, cancel := context.WithCancel(ctx)
	unsubscribe := h.Subscribe(s)
	defer func() {
		cancel()
		unsubscribe()
		s.close()
	}()

	go func() {
		<-ctx.Done()
		s.close()
	}()

	for {
		msgType, _, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(ctx, "subscriber read failed",
					logger.String("subscriber_id", s.id), logger.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := s.writeJSON(Pong{Type: messageTypePong, Timestamp: time.Now().UTC()}); err != nil {
			return
		}
	}
}

func (s *WSSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}

package broadcast

import (
	"time"

	"github.com/okian/sightline/pkg/logger"
)

// Option configures a Hub.
type Option func(*Hub)

// WithQueueSize bounds the number of updates awaiting delivery.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithClock sets the time source used to stamp envelopes.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

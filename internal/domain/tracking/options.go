package tracking

import (
	"time"

	"github.com/okian/sightline/pkg/logger"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithTimeWindow sets the maximum |Δt| between a sighting and a matching sample.
func WithTimeWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.window = d
		}
	}
}

// WithRadius sets the maximum Euclidean distance to a matching sample.
func WithRadius(r float64) Option {
	return func(m *Manager) {
		if r >= 0 {
			m.radius = r
		}
	}
}

// WithRecentSamples sets how many trailing samples per track are considered for matching.
func WithRecentSamples(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.recentSamples = n
		}
	}
}

// WithHistoryLimit caps the stored position history per track.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.historyLimit = n
		}
	}
}

// WithTrackingTimeout sets the inactivity TTL of a track.
func WithTrackingTimeout(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithIDGenerator replaces the person id generator.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

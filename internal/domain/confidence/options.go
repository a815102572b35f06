package confidence

import (
	"time"

	"github.com/okian/sightline/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithThreshold sets the exclusive confidence threshold.
func WithThreshold(threshold float64) Option {
	return func(a *Aggregator) {
		if threshold >= 0 && threshold <= 100 {
			a.threshold = threshold
		}
	}
}

// WithSessionTimeout sets the TTL applied to session state on every write.
func WithSessionTimeout(ttl time.Duration) Option {
	return func(a *Aggregator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

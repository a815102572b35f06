package resolver

import (
	"time"

	"github.com/okian/sightline/internal/domain/dedupe"
	"github.com/okian/sightline/pkg/logger"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithBroadcaster sets where tracking updates are handed off.
func WithBroadcaster(b Broadcaster) Option {
	return func(r *Resolver) { r.broadcaster = b }
}

// WithEmissionGuard sets the set of sessions that already emitted.
func WithEmissionGuard(d dedupe.Deduper) Option {
	return func(r *Resolver) {
		if d != nil {
			r.guard = d
		}
	}
}

// WithEmbeddingDim sets the length of the placeholder embedding.
func WithEmbeddingDim(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.embeddingDim = n
		}
	}
}

// WithTopK sets how many candidates to request.
func WithTopK(k int) Option {
	return func(r *Resolver) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithSessionWindow sets the session bucket width.
func WithSessionWindow(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.sessionWindow = d
		}
	}
}

// WithCallTimeout bounds each collaborator call.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// PublishOption configures a RetryingPublisher.
type PublishOption func(*RetryingPublisher)

// WithMaxAttempts sets the total number of publish attempts.
func WithMaxAttempts(n int) PublishOption {
	return func(p *RetryingPublisher) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithInitialBackoff sets the wait before the second attempt.
func WithInitialBackoff(d time.Duration) PublishOption {
	return func(p *RetryingPublisher) {
		if d > 0 {
			p.initialBackoff = d
		}
	}
}

// WithAttemptTimeout bounds each attempt.
func WithAttemptTimeout(d time.Duration) PublishOption {
	return func(p *RetryingPublisher) {
		if d > 0 {
			p.attemptTimeout = d
		}
	}
}

// WithPublishLogger sets a custom logger.
func WithPublishLogger(l logger.Logger) PublishOption {
	return func(p *RetryingPublisher) {
		if l != nil {
			p.logger = l
		}
	}
}

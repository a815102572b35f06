package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

// Default publish retry constants.
const (
	defaultPublishAttempts = 3
	defaultInitialBackoff  = time.Second
	defaultAttemptTimeout  = 10 * time.Second
	backoffMultiplier      = 2
)

// RetryingPublisher retries a Publisher with exponential backoff: the wait
// starts at the initial interval and doubles after every failed attempt.
type RetryingPublisher struct {
	next           Publisher
	attempts       int
	initialBackoff time.Duration
	attemptTimeout time.Duration
	logger         logger.Logger
}

var _ Publisher = (*RetryingPublisher)(nil)

// NewRetryingPublisher wraps next.
func NewRetryingPublisher(next Publisher, opts ...PublishOption) *RetryingPublisher {
	p := &RetryingPublisher{
		next:           next,
		attempts:       defaultPublishAttempts,
		initialBackoff: defaultInitialBackoff,
		attemptTimeout: defaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.NamedOrNop("publisher")
	}
	return p
}

func (p *RetryingPublisher) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialBackoff
	b.Multiplier = backoffMultiplier
	b.RandomizationFactor = 0
	b.MaxInterval = p.initialBackoff << p.attempts
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.attempts-1)), ctx)
}

// Publish returns nil after the first successful attempt, or
// ErrPublishExhausted wrapping the last failure.
func (p *RetryingPublisher) Publish(ctx context.Context, event model.IdentifiedCustomerEvent) error {
	attempt := 0
	op := func() error {
		attempt++
		metrics.RecordPublishAttempt()

		attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
		defer cancel()
		if err := p.next.Publish(attemptCtx, event); err != nil {
			metrics.RecordPublishFailure()
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Warn(ctx, "publish failed, retrying",
			logger.String("customer_id", event.CustomerID),
			logger.Int("attempt", attempt),
			logger.Duration("backoff", wait),
			logger.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, p.policy(ctx), notify); err != nil {
		return fmt.Errorf("%w after %d attempts: %w", ErrPublishExhausted, attempt, err)
	}
	return nil
}

// LogPublisher records identifications in the log instead of a broker.
type LogPublisher struct {
	logger logger.Logger
}

var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher creates a publisher that writes to l.
func NewLogPublisher(l logger.Logger) *LogPublisher {
	if l == nil {
		l = logger.NamedOrNop("publisher")
	}
	return &LogPublisher{logger: l}
}

func (p *LogPublisher) Publish(ctx context.Context, event model.IdentifiedCustomerEvent) error {
	p.logger.Info(ctx, "identified customer",
		logger.String("customer_id", event.CustomerID),
		logger.Float64("confidence", event.Confidence),
		logger.String("camera_id", event.CameraID),
		logger.Time("timestamp", event.Timestamp),
	)
	return nil
}

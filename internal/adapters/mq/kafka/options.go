package kafka

import (
	"time"

	"github.com/okian/sightline/pkg/logger"
)

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithPollTimeout sets how long one poll waits for a message.
func WithPollTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.pollTimeout = d
		}
	}
}

// WithConsumerLogger sets a custom logger.
func WithConsumerLogger(l logger.Logger) ConsumerOption {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithFlushTimeout bounds the flush performed by Close.
func WithFlushTimeout(d time.Duration) ProducerOption {
	return func(p *Producer) {
		if d > 0 {
			p.flushTimeout = d
		}
	}
}

// WithProducerLogger sets a custom logger.
func WithProducerLogger(l logger.Logger) ProducerOption {
	return func(p *Producer) {
		if l != nil {
			p.logger = l
		}
	}
}

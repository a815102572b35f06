// Package kafka connects the pipeline to the message broker: a consumer that
// feeds sightings into the hand-off queue and a producer for identifications.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

// Default consumer configuration constants.
const (
	defaultPollTimeout = 500 * time.Millisecond
	errorPause         = time.Second
	sourceKafka        = "kafka"
)

// Sink accepts decoded sightings, blocking while it is full.
type Sink interface {
	Put(ctx context.Context, event model.SightingEvent) error
}

// reader is the part of *kafka.Consumer the loop needs.
type reader interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	Close() error
}

// Consumer polls one topic and hands valid sightings to a Sink.
type Consumer struct {
	reader      reader
	topic       string
	sink        Sink
	pollTimeout time.Duration
	logger      logger.Logger
}

// NewConsumer creates a consumer in group groupID reading topic from the
// earliest uncommitted offset with auto-commit.
func NewConsumer(bootstrapServers, groupID, topic string, sink Sink, opts ...ConsumerOption) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  bootstrapServers,
		"group.id":           groupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create consumer: %w", ErrClient, err)
	}
	return newConsumer(c, topic, sink, opts...), nil
}

func newConsumer(r reader, topic string, sink Sink, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:      r,
		topic:       topic,
		sink:        sink,
		pollTimeout: defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.NamedOrNop("kafka-consumer")
	}
	return c
}

// Run polls until ctx is done or the sink refuses events. Broker errors and
// malformed payloads are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.reader.SubscribeTopics([]string{c.topic}, nil); err != nil {
		return fmt.Errorf("%w: subscribe %s: %w", ErrClient, c.topic, err)
	}
	c.logger.Info(ctx, "consuming", logger.String("topic", c.topic))

	for ctx.Err() == nil {
		msg, err := c.reader.ReadMessage(c.pollTimeout)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			c.logger.Warn(ctx, "poll failed", logger.Error(err))
			if !sleep(ctx, errorPause) {
				break
			}
			continue
		}

		event, err := model.DecodeSighting(msg.Value)
		if err != nil {
			metrics.RecordSightingDropped("malformed")
			c.logger.Error(ctx, "malformed sighting dropped",
				logger.String("payload", string(msg.Value)),
				logger.Any("partition", msg.TopicPartition.Partition),
				logger.String("offset", msg.TopicPartition.Offset.String()),
				logger.Error(err),
			)
			continue
		}

		metrics.RecordSightingReceived(sourceKafka)
		if err := c.sink.Put(ctx, event); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return fmt.Errorf("hand off sighting: %w", err)
		}
	}
	c.logger.Info(ctx, "consumer stopped")
	return nil
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("%w: close consumer: %w", ErrClient, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var kerr kafka.Error
	return errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

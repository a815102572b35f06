package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
)

const defaultFlushTimeout = 10 * time.Second

// writer is the part of *kafka.Producer the publisher needs.
type writer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// Producer writes JSON messages to one topic and waits for the broker
// acknowledgement of each.
type Producer struct {
	writer       writer
	topic        string
	flushTimeout time.Duration
	logger       logger.Logger
}

// NewProducer creates a producer for topic that requires acknowledgement
// from all in-sync replicas.
func NewProducer(bootstrapServers, topic string, opts ...ProducerOption) (*Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  bootstrapServers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create producer: %w", ErrClient, err)
	}
	return newProducer(p, topic, opts...), nil
}

func newProducer(w writer, topic string, opts ...ProducerOption) *Producer {
	p := &Producer{writer: w, topic: topic, flushTimeout: defaultFlushTimeout}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.NamedOrNop("kafka-producer")
	}
	return p
}

// Send marshals v and produces it under key, returning once the broker has
// acknowledged it or ctx is done.
func (p *Producer) Send(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	deliveries := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          payload,
	}
	if err := p.writer.Produce(msg, deliveries); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrDelivery, ctx.Err())
	case e := <-deliveries:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("%w: unexpected event %v", ErrDelivery, e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("%w: %w", ErrDelivery, m.TopicPartition.Error)
		}
		return nil
	}
}

// Publish sends an identification keyed by customer id.
func (p *Producer) Publish(ctx context.Context, event model.IdentifiedCustomerEvent) error {
	return p.Send(ctx, event.CustomerID, event)
}

// Close flushes outstanding messages and releases the client.
func (p *Producer) Close() {
	if remaining := p.writer.Flush(int(p.flushTimeout.Milliseconds())); remaining > 0 {
		p.logger.Warn(context.Background(), "messages left unflushed", logger.Int("remaining", remaining))
	}
	p.writer.Close()
}

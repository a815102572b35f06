// Package broadcast fans tracking updates out to live subscribers.
//
// Producers hand updates to Publish, which only enqueues; a single Run loop
// delivers them in order. A subscriber whose delivery fails is removed after
// the pass, never during it.
package broadcast

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/sightline/internal/adapters/mq/queue"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

const defaultQueueSize = 1000

// Subscriber receives envelopes. Send must not retain env after returning.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, env model.Envelope) error
}

// Hub owns the subscriber set and the delivery loop.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber

	updates   *queue.InMemoryQueue[model.TrackingUpdate]
	queueSize int
	now       func() time.Time
	logger    logger.Logger
}

// New creates a hub. Call Run to start delivery.
func New(opts ...Option) *Hub {
	h := &Hub{
		subscribers: make(map[string]Subscriber),
		queueSize:   defaultQueueSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.NamedOrNop("broadcast")
	}
	h.updates = queue.NewInMemoryQueue[model.TrackingUpdate](
		queue.WithCapacity(h.queueSize),
		queue.WithName("broadcast"),
	)
	return h
}

// Subscribe registers s and returns a function that removes it.
func (h *Hub) Subscribe(s Subscriber) func() {
	h.mu.Lock()
	h.subscribers[s.ID()] = s
	n := len(h.subscribers)
	h.mu.Unlock()

	metrics.UpdateSubscriberCount(n)
	return func() { h.Unsubscribe(s.ID()) }
}

// Unsubscribe removes the subscriber with id. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subscribers, id)
	n := len(h.subscribers)
	h.mu.Unlock()

	metrics.UpdateSubscriberCount(n)
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish hands u to the delivery loop without blocking. It reports false
// when the hand-off queue is full or the hub is closed.
func (h *Hub) Publish(ctx context.Context, u model.TrackingUpdate) bool {
	if h.updates.Enqueue(ctx, u) {
		return true
	}
	h.logger.Warn(ctx, "tracking update dropped", logger.String("camera_id", u.CameraID))
	return false
}

// Run delivers queued updates until Close drains the queue or ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for u := range h.updates.Dequeue(ctx) {
		h.Broadcast(ctx, u)
	}
}

// Close stops accepting updates; Run returns once the queue is drained.
func (h *Hub) Close() error {
	return h.updates.Close()
}

// Broadcast delivers u to every subscriber present when the pass starts and
// then prunes those that failed. It returns the number of successful sends.
func (h *Hub) Broadcast(ctx context.Context, u model.TrackingUpdate) int {
	env := model.NewEnvelope(u, h.now())

	var failed []string
	sent := 0
	for _, s := range h.snapshot() {
		if err := s.Send(ctx, env); err != nil {
			metrics.RecordBroadcastFailure()
			h.logger.Warn(ctx, "subscriber delivery failed",
				logger.String("subscriber_id", s.ID()),
				logger.Error(err),
			)
			failed = append(failed, s.ID())
			continue
		}
		sent++
	}
	metrics.RecordBroadcast()

	for _, id := range failed {
		h.Unsubscribe(id)
		metrics.RecordSubscriberPruned()
	}
	return sent
}

// snapshot copies the set in id order so a pass is unaffected by
// concurrent subscription changes.
func (h *Hub) snapshot() []Subscriber {
	h.mu.RLock()
	out := make([]Subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		out = append(out, s)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

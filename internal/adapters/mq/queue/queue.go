// Package queue is the bounded hand-off between producers (the broker
// consumer, the HTTP ingest endpoint, the resolver's broadcast step) and the
// single goroutine that drains them.
package queue

import (
	"context"
	"sync"

	"github.com/okian/sightline/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10_000
	defaultName          = "queue"
)

// Queue provides non-blocking and blocking enqueue with channel-based dequeue.
// Items are delivered in FIFO order.
type Queue[T any] interface {
	// Enqueue adds an item without blocking.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, item T) bool

	// Put adds an item, waiting for room. It returns ErrClosed once the
	// queue is closed, or the context error.
	Put(ctx context.Context, item T) error

	// Dequeue returns a channel that receives items as they become available.
	// The channel is closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan T

	// Len returns the current number of queued items.
	Len(ctx context.Context) int

	// Close stops accepting items. Items already queued are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	name     string
	items    chan T
	capacity int

	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

var _ Queue[int] = (*InMemoryQueue[int])(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	cfg := config{name: defaultName, capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	q := &InMemoryQueue[T]{
		name:     cfg.name,
		items:    make(chan T, cfg.capacity),
		capacity: cfg.capacity,
		done:     make(chan struct{}),
	}
	metrics.UpdateQueueSize(q.name, 0)
	return q
}

func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueError(q.name, "closed")
		return false
	}

	select {
	case q.items <- item:
		metrics.UpdateQueueSize(q.name, len(q.items))
		return true
	case <-ctx.Done():
		metrics.RecordQueueError(q.name, "context_cancelled")
		return false
	default:
		metrics.RecordQueueError(q.name, "queue_full")
		return false
	}
}

func (q *InMemoryQueue[T]) Put(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.items <- item:
		metrics.UpdateQueueSize(q.name, len(q.items))
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		metrics.RecordQueueError(q.name, "context_cancelled")
		return ctx.Err()
	}
}

func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for item := range q.items {
			select {
			case out <- item:
				metrics.UpdateQueueSize(q.name, len(q.items))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (q *InMemoryQueue[T]) Len(_ context.Context) int {
	size := len(q.items)
	metrics.UpdateQueueSize(q.name, size)
	return size
}

// Close wakes blocked producers first so the write lock can be taken.
func (q *InMemoryQueue[T]) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)

		q.mu.Lock()
		defer q.mu.Unlock()
		close(q.items)
		q.closed = true
	})
	return nil
}

func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Package worker drains the sighting queue on a single goroutine so that
// per-session state is only ever mutated by one consumer.
package worker

import (
	"context"
	"fmt"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
)

// Handler processes one sighting. It owns error reporting; the worker never
// sees a failure.
type Handler interface {
	Handle(ctx context.Context, event model.SightingEvent)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event model.SightingEvent)

func (f HandlerFunc) Handle(ctx context.Context, event model.SightingEvent) { f(ctx, event) }

// Queue defines how the worker receives events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.SightingEvent
}

// Worker processes events sequentially.
type Worker interface {
	// Run starts the worker loop until the queue is closed and drained or
	// ctx is canceled.
	Run(ctx context.Context)

	// Shutdown closes the queue when it supports it and waits for the
	// remaining events to be processed.
	Shutdown(ctx context.Context) error
}

// SequentialWorker implements Worker with a single consumer loop.
type SequentialWorker struct {
	queue   Queue
	handler Handler
	name    string

	done chan struct{}

	logger logger.Logger
}

var _ Worker = (*SequentialWorker)(nil)

// NewSequentialWorker creates a worker with configuration options.
func NewSequentialWorker(queue Queue, handler Handler, opts ...Option) *SequentialWorker {
	w := &SequentialWorker{
		queue:   queue,
		handler: handler,
		name:    "worker",
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.NamedOrNop(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *SequentialWorker) Run(ctx context.Context) {
	defer close(w.done)

	w.logger.Info(ctx, "worker started")
	processed := 0
	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Warn(ctx, "worker cancelled", logger.Int("processed", processed))
			return
		case event, ok := <-events:
			if !ok {
				w.logger.Info(ctx, "worker drained", logger.Int("processed", processed))
				return
			}
			w.handler.Handle(ctx, event)
			processed++
		}
	}
}

// Done is closed when Run returns.
func (w *SequentialWorker) Done() <-chan struct{} { return w.done }

// Shutdown gracefully stops the worker.
func (w *SequentialWorker) Shutdown(ctx context.Context) error {
	if closer, ok := w.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			w.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

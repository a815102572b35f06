package worker

import (
	"github.com/okian/sightline/pkg/logger"
)

// Option applies a configuration option to the SequentialWorker.
type Option func(*SequentialWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *SequentialWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *SequentialWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

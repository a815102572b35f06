package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*config)

type config struct {
	name     string
	capacity int
}

// WithCapacity sets the maximum number of queued items.
func WithCapacity(capacity int) Option {
	return func(c *config) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// WithName labels the queue's metrics.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

package store

import "time"

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepInterval sets how often expired keys are reclaimed in the background.
func WithSweepInterval(interval time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*redisConfig)

type redisConfig struct {
	password string
	db       int
	scanSize int64
}

// WithPassword sets the AUTH password.
func WithPassword(password string) RedisOption {
	return func(c *redisConfig) { c.password = password }
}

// WithDB selects the logical database.
func WithDB(db int) RedisOption {
	return func(c *redisConfig) {
		if db >= 0 {
			c.db = db
		}
	}
}

// WithScanCount sets the COUNT hint used when listing keys.
func WithScanCount(n int64) RedisOption {
	return func(c *redisConfig) {
		if n > 0 {
			c.scanSize = n
		}
	}
}

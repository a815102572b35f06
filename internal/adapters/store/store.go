// Package store provides typed access to the key-value state store that holds
// session confidence and person tracks.
package store

import (
	"context"
	"time"
)

// Store is the subset of key-value operations the identity engine relies on.
// Every operation is individually fallible. A ttl of zero means no expiry.
//
// List indices follow Redis semantics: negative values count from the tail,
// so LRange(ctx, k, -10, -1) returns the last ten elements.
type Store interface {
	// Get returns the string value at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// HGetAll returns an empty map when the hash is absent.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error

	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	// Expire is a no-op for missing keys.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Keys lists live keys starting with prefix in lexicographic order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Del(ctx context.Context, keys ...string) error

	Ping(ctx context.Context) error
	Close() error
}

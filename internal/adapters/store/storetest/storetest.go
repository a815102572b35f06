// Package storetest provides store doubles for tests of store consumers.
package storetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/sightline/internal/adapters/store"
)

// ErrInjected is returned by operations a Faulty store is told to fail.
var ErrInjected = errors.New("injected store failure")

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// NewMemory returns a memory store driven by clock. It is closed with t's cleanup.
func NewMemory(t interface{ Cleanup(func()) }, clock *Clock) *store.MemoryStore {
	s := store.NewMemoryStore(context.Background(),
		store.WithClock(clock.Now),
		store.WithSweepInterval(time.Hour),
	)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Faulty wraps a Store and fails the operations named in Fail.
// Operation names are the method names: "Get", "Set", "Keys", ...
type Faulty struct {
	store.Store

	mu   sync.Mutex
	fail map[string]bool
}

// NewFaulty wraps s with no failures enabled.
func NewFaulty(s store.Store) *Faulty {
	return &Faulty{Store: s, fail: make(map[string]bool)}
}

// Fail makes every named operation return ErrInjected until Heal is called.
func (f *Faulty) Fail(ops ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range ops {
		f.fail[op] = true
	}
}

// Heal clears all injected failures.
func (f *Faulty) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = make(map[string]bool)
}

func (f *Faulty) failing(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *Faulty) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failing("Get") {
		return "", false, ErrInjected
	}
	return f.Store.Get(ctx, key)
}

func (f *Faulty) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.failing("Set") {
		return ErrInjected
	}
	return f.Store.Set(ctx, key, value, ttl)
}

func (f *Faulty) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if f.failing("HGetAll") {
		return nil, ErrInjected
	}
	return f.Store.HGetAll(ctx, key)
}

func (f *Faulty) HSet(ctx context.Context, key string, fields map[string]string) error {
	if f.failing("HSet") {
		return ErrInjected
	}
	return f.Store.HSet(ctx, key, fields)
}

func (f *Faulty) RPush(ctx context.Context, key string, values ...string) error {
	if f.failing("RPush") {
		return ErrInjected
	}
	return f.Store.RPush(ctx, key, values...)
}

func (f *Faulty) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if f.failing("LRange") {
		return nil, ErrInjected
	}
	return f.Store.LRange(ctx, key, start, stop)
}

func (f *Faulty) LTrim(ctx context.Context, key string, start, stop int64) error {
	if f.failing("LTrim") {
		return ErrInjected
	}
	return f.Store.LTrim(ctx, key, start, stop)
}

func (f *Faulty) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if f.failing("Expire") {
		return ErrInjected
	}
	return f.Store.Expire(ctx, key, ttl)
}

func (f *Faulty) Keys(ctx context.Context, prefix string) ([]string, error) {
	if f.failing("Keys") {
		return nil, ErrInjected
	}
	return f.Store.Keys(ctx, prefix)
}

func (f *Faulty) Del(ctx context.Context, keys ...string) error {
	if f.failing("Del") {
		return ErrInjected
	}
	return f.Store.Del(ctx, keys...)
}

func (f *Faulty) Ping(ctx context.Context) error {
	if f.failing("Ping") {
		return ErrInjected
	}
	return f.Store.Ping(ctx)
}

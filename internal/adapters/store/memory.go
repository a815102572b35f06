package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/sightline/pkg/metrics"
)

type kind int

const (
	kindString kind = iota
	kindHash
	kindList
)

// entry is one key's value plus its absolute expiry (zero for none).
type entry struct {
	kind     kind
	str      string
	hash     map[string]string
	list     []string
	expireAt time.Time
}

// MemoryStore is an in-process Store with per-key TTL.
// Expired keys are invisible immediately and reclaimed by a background sweep.
type MemoryStore struct {
	mu            sync.RWMutex
	data          map[string]*entry
	now           func() time.Time
	sweepInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	closed   bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a memory store and starts its sweeper, which stops
// when ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		data:          make(map[string]*entry),
		now:           time.Now,
		sweepInterval: 30 * time.Second,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startSweeper(ctx)
	return s
}

func (s *MemoryStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// sweep drops expired keys and reports the live key count.
func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
		}
	}
	n := len(s.data)
	s.mu.Unlock()
	metrics.UpdateStoreKeys("memory", n)
}

// Close stops the sweeper. Further operations return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopChan)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// lookup returns the live entry for key. Callers hold at least a read lock.
func (s *MemoryStore) lookup(key string, now time.Time) *entry {
	e, ok := s.data[key]
	if !ok || e.expired(now) {
		return nil
	}
	return e
}

func (s *MemoryStore) expiry(ttl time.Duration, now time.Time) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}
	e := s.lookup(key, s.now())
	if e == nil {
		return "", false, nil
	}
	if e.kind != kindString {
		return "", false, ErrWrongType
	}
	return e.str, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	now := s.now()
	s.data[key] = &entry{kind: kindString, str: value, expireAt: s.expiry(ttl, now)}
	return nil
}

func (s *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[string]string)
	e := s.lookup(key, s.now())
	if e == nil {
		return out, nil
	}
	if e.kind != kindHash {
		return nil, ErrWrongType
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

// HSet merges fields into the hash, keeping any existing expiry.
func (s *MemoryStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e := s.lookup(key, s.now())
	if e == nil {
		e = &entry{kind: kindHash, hash: make(map[string]string, len(fields))}
		s.data[key] = e
	}
	if e.kind != kindHash {
		return ErrWrongType
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	return nil
}

func (s *MemoryStore) RPush(ctx context.Context, key string, values ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e := s.lookup(key, s.now())
	if e == nil {
		e = &entry{kind: kindList}
		s.data[key] = e
	}
	if e.kind != kindList {
		return ErrWrongType
	}
	e.list = append(e.list, values...)
	return nil
}

func (s *MemoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	e := s.lookup(key, s.now())
	if e == nil {
		return []string{}, nil
	}
	if e.kind != kindList {
		return nil, ErrWrongType
	}
	lo, hi, ok := listBounds(int64(len(e.list)), start, stop)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, hi-lo+1)
	copy(out, e.list[lo:hi+1])
	return out, nil
}

func (s *MemoryStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e := s.lookup(key, s.now())
	if e == nil {
		return nil
	}
	if e.kind != kindList {
		return ErrWrongType
	}
	lo, hi, ok := listBounds(int64(len(e.list)), start, stop)
	if !ok {
		delete(s.data, key)
		return nil
	}
	e.list = append([]string(nil), e.list[lo:hi+1]...)
	return nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	now := s.now()
	e := s.lookup(key, now)
	if e == nil {
		return nil
	}
	if ttl <= 0 {
		delete(s.data, key)
		return nil
	}
	e.expireAt = now.Add(ttl)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	now := s.now()
	out := make([]string, 0)
	for k, e := range s.data {
		if strings.HasPrefix(k, prefix) && !e.expired(now) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// listBounds resolves Redis-style inclusive indices against a list of length n.
func listBounds(n, start, stop int64) (lo, hi int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}

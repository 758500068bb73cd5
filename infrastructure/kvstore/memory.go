package kvstore

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"postservice/application/ports"
)

// ErrWrongType is returned when a command targets a key holding another kind of value
var ErrWrongType = errors.New("operation against a key holding the wrong kind of value")

type entryKind int

const (
	kindString entryKind = iota
	kindSet
	kindZSet
)

type memoryEntry struct {
	kind      entryKind
	value     []byte
	set       map[string]struct{}
	zset      map[string]float64
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process KeyValueStore with TTLs, used for local runs and tests
type MemoryStore struct {
	mu      sync.Mutex
	items   map[string]*memoryEntry
	now     func() time.Time
	stop    chan struct{}
	stopped sync.Once
}

// NewMemoryStore creates a new in-memory store and starts its expiry sweeper
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		items: make(map[string]*memoryEntry),
		now:   time.Now,
		stop:  make(chan struct{}),
	}

	go s.cleanupExpired(time.Minute)

	return s
}

// Close stops the expiry sweeper
func (s *MemoryStore) Close() error {
	s.stopped.Do(func() { close(s.stop) })
	return nil
}

// lookup returns the live entry for key, evicting it when expired. Caller holds mu.
func (s *MemoryStore) lookup(key string) *memoryEntry {
	e, ok := s.items[key]
	if !ok {
		return nil
	}
	if e.expired(s.now()) {
		delete(s.items, key)
		return nil
	}
	return e
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return nil, ports.ErrCacheMiss
	}
	if e.kind != kindString {
		return nil, ErrWrongType
	}
	return append([]byte(nil), e.value...), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = &memoryEntry{
		kind:      kindString,
		value:     append([]byte(nil), value...),
		expiresAt: s.expiry(ttl),
	}
	return nil
}

func (s *MemoryStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookup(key) != nil {
		return false, nil
	}
	s.items[key] = &memoryEntry{
		kind:      kindString,
		value:     append([]byte(nil), value...),
		expiresAt: s.expiry(ttl),
	}
	return true, nil
}

func (s *MemoryStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil || e.kind != kindString || string(e.value) != string(expected) {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookup(key) != nil, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return false, nil
	}
	e.expiresAt = s.expiry(ttl)
	return true, nil
}

func (s *MemoryStore) SAdd(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		e = &memoryEntry{kind: kindSet, set: make(map[string]struct{})}
		s.items[key] = e
	}
	if e.kind != kindSet {
		return ErrWrongType
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SRem(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return nil
	}
	if e.kind != kindSet {
		return ErrWrongType
	}
	for _, m := range members {
		delete(e.set, m)
	}
	if len(e.set) == 0 {
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return []string{}, nil
	}
	if e.kind != kindSet {
		return nil, ErrWrongType
	}
	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	return members, nil
}

func (s *MemoryStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		e = &memoryEntry{kind: kindZSet, zset: make(map[string]float64)}
		s.items[key] = e
	}
	if e.kind != kindZSet {
		return ErrWrongType
	}
	e.zset[member] = score
	return nil
}

func (s *MemoryStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return nil
	}
	if e.kind != kindZSet {
		return ErrWrongType
	}
	for m, score := range e.zset {
		if score >= min && score <= max {
			delete(e.zset, m)
		}
	}
	if len(e.zset) == 0 {
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryStore) ZCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return 0, nil
	}
	if e.kind != kindZSet {
		return 0, ErrWrongType
	}
	return int64(len(e.zset)), nil
}

func (s *MemoryStore) ZOldest(ctx context.Context, key string) (string, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil || (e.kind == kindZSet && len(e.zset) == 0) {
		return "", 0, ports.ErrCacheMiss
	}
	if e.kind != kindZSet {
		return "", 0, ErrWrongType
	}

	oldest, lowest := "", math.Inf(1)
	for m, score := range e.zset {
		if score < lowest || (score == lowest && m < oldest) {
			oldest, lowest = m, score
		}
	}
	return oldest, lowest, nil
}

func (s *MemoryStore) ZSlide(ctx context.Context, key string, score float64, member string, cutoff float64, ttl time.Duration) (ports.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		e = &memoryEntry{kind: kindZSet, zset: make(map[string]float64)}
		s.items[key] = e
	}
	if e.kind != kindZSet {
		return ports.Window{}, ErrWrongType
	}

	e.zset[member] = score
	var window ports.Window
	for m, sc := range e.zset {
		if sc <= cutoff {
			delete(e.zset, m)
			continue
		}
		if window.Count == 0 || sc < window.Oldest {
			window.Oldest = sc
		}
		window.Count++
	}
	if window.Count == 0 {
		delete(s.items, key)
		return window, nil
	}
	e.expiresAt = s.expiry(ttl)
	return window, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// cleanupExpired periodically removes expired items
func (s *MemoryStore) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			for key, e := range s.items {
				if e.expired(now) {
					delete(s.items, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

var _ ports.KeyValueStore = (*MemoryStore)(nil)

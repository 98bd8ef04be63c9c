package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	limit      Limit
	tokens     float64
	lastRefill time.Time
}

// refill brings tokens up to date as of now. A clock that moved backwards
// leaves the bucket untouched.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens = min(float64(b.limit.Capacity), b.tokens+elapsed.Seconds()*b.limit.RefillRate)
	b.lastRefill = now
}

// MemoryStore is an in-process bucket store. It is safe for concurrent use;
// a single mutex guards every refill-and-take.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Take refills the bucket for key and consumes one token if available. The
// bucket is created full on first use.
func (s *MemoryStore) Take(_ context.Context, key string, limit Limit) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limit: limit, tokens: float64(limit.Capacity), lastRefill: now}
		s.buckets[key] = b
	}
	b.refill(now)

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Remaining: b.tokens}, nil
	}
	return Decision{
		Remaining:  b.tokens,
		RetryAfter: b.limit.waitFor(1 - b.tokens),
	}, nil
}

// Tokens reports the tokens currently available for key without consuming
// any. ok is false when no bucket exists yet.
func (s *MemoryStore) Tokens(key string) (tokens float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		return 0, false
	}
	view := *b
	view.refill(s.now())
	return view.tokens, true
}

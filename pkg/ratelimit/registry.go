package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval caps how long a waiting Acquire sleeps before it asks the
// store again.
const DefaultPollInterval = 80 * time.Millisecond

// Registry hands out limiters keyed by resource name. Limiters for the same
// key share bucket state through the registry's store.
type Registry struct {
	store        Store
	pollInterval time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	limits map[string]Limit
}

// Option configures a Registry.
type Option func(*Registry)

// WithPollInterval sets the longest single sleep inside Acquire.
func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns a Registry backed by store. A nil store means a fresh
// MemoryStore.
func NewRegistry(store Store, opts ...Option) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	r := &Registry{
		store:        store,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
		limits:       make(map[string]Limit),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Limiter returns a limiter for key. The first call for a key fixes its limit;
// later calls must pass the same limit or get ErrLimitConflict.
func (r *Registry) Limiter(key string, limit Limit) (*Limiter, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty resource key", ErrInvalidLimit)
	}
	if err := limit.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.limits[key]; ok && existing != limit {
		r.logger.Warn("rate limit already registered with different settings",
			"key", key,
			"capacity", existing.Capacity,
			"refill_per_sec", existing.RefillRate,
			"requested_capacity", limit.Capacity,
			"requested_refill_per_sec", limit.RefillRate,
		)
		return nil, fmt.Errorf("%w %q: registered %+v, requested %+v", ErrLimitConflict, key, existing, limit)
	}
	r.limits[key] = limit
	return &Limiter{key: key, limit: limit, registry: r}, nil
}

// Limits returns a copy of every registered key and its limit.
func (r *Registry) Limits() map[string]Limit {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Limit, len(r.limits))
	for k, v := range r.limits {
		out[k] = v
	}
	return out
}

// Limiter admits calls against one named bucket.
type Limiter struct {
	key      string
	limit    Limit
	registry *Registry
}

// Key returns the resource key.
func (l *Limiter) Key() string { return l.key }

// Limit returns the bucket configuration.
func (l *Limiter) Limit() Limit { return l.limit }

// Acquire blocks until one token is taken from the bucket. It returns early
// only when ctx ends or the store fails; with the memory store and a context
// that never ends it always succeeds eventually.
func (l *Limiter) Acquire(ctx context.Context) error {
	poll := l.registry.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		d, err := l.registry.store.Take(ctx, l.key, l.limit)
		if err != nil {
			return fmt.Errorf("acquire %s: %w", l.key, err)
		}
		if d.Allowed {
			return nil
		}

		wait := d.RetryAfter
		if wait <= 0 || wait > poll {
			wait = poll
		}
		wait = max(wait, time.Millisecond)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

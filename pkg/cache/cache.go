// Package cache is an in-memory cache-aside layer with per-entry TTLs, a
// bounded LRU and per-key collapsing of concurrent misses.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/mtgmarket/cardgate/pkg/models"
)

const (
	DefaultMaxEntries = 5000
	DefaultTTL        = time.Hour
)

// ErrEmptyKey is returned by Do for an empty key.
var ErrEmptyKey = errors.New("cache key cannot be empty")

// ProducerError wraps a failure of the producer passed to Do. Nothing is
// cached for the key when it is returned.
type ProducerError struct {
	Key string
	Err error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("produce %s: %v", e.Key, e.Err)
}

func (e *ProducerError) Unwrap() error { return e.Err }

// Producer computes a value on a cache miss.
type Producer func(ctx context.Context) (any, error)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	lru        *simplelru.LRU[string, entry]
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	group singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	shared    atomic.Int64 // callers served by a producer call another caller also waited on
	evictions atomic.Int64 // capacity evictions only
}

// New creates a Cache holding at most maxEntries values. Values stored without
// a TTL live for defaultTTL. Non-positive arguments fall back to the package
// defaults.
func New(maxEntries int, defaultTTL time.Duration) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	c := &Cache{
		capacity:   maxEntries,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	l, err := simplelru.NewLRU[string, entry](maxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.lru = l
	return c, nil
}

// Get returns the value for key if present and not expired. An expired entry
// is removed and reported as a miss. The value is shared and must not be modified.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.lookup(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl, or the default TTL when ttl <= 0. It may
// evict the least recently used entry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if evicted := c.lru.Add(key, entry{value: value, expiresAt: c.now().Add(ttl)}); evicted {
		c.evictions.Add(1)
	}
}

// Do returns the cached value for key, or runs producer and caches its result
// for ttl. Concurrent misses on one key share a single producer call. A caller
// whose ctx ends stops waiting with ctx.Err(); the producer keeps running for
// the others on a context that is not cancelled with the caller's. The
// returned value is shared with every other caller of the key and must not be
// modified.
func (c *Cache) Do(ctx context.Context, key string, ttl time.Duration, producer Producer) (any, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// an earlier flight may have filled the key since our lookup
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := producer(context.WithoutCancel(ctx))
		if err != nil {
			return nil, &ProducerError{Key: key, Err: err}
		}
		c.Set(key, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.shared.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	}
}

// Fetch is Do with a typed producer.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, producer func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.Do(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return producer(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache %s: cached %T, want %T", key, v, zero)
	}
	return t, nil
}

// Len returns the number of stored entries, including expired ones not yet
// looked up.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge drops every entry. Counters are kept.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Entries:   c.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Shared:    c.shared.Load(),
		Evictions: c.evictions.Load(),
	}
}

package ratelimit

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketSource string

const (
	defaultRedisPrefix  = "cardgate:bucket:"
	defaultRedisIdleTTL = 10 * time.Minute
)

// RedisStore keeps buckets in Redis hashes so that every process pointed at the
// same Redis shares one budget per key. Idle buckets expire on their own.
type RedisStore struct {
	client  redis.Scripter
	script  *redis.Script
	prefix  string
	idleTTL time.Duration
	now     func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the prefix for bucket keys (default "cardgate:bucket:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithIdleTTL sets how long an untouched bucket survives (default 10m).
func WithIdleTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.idleTTL = d }
}

// NewRedisStore returns a RedisStore using client, typically a *redis.Client.
func NewRedisStore(client redis.Scripter, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	s := &RedisStore{
		client:  client,
		script:  redis.NewScript(tokenBucketSource),
		prefix:  defaultRedisPrefix,
		idleTTL: defaultRedisIdleTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.idleTTL < time.Millisecond {
		return nil, errors.New("idle ttl must be at least 1ms")
	}
	return s, nil
}

// Take runs the refill-and-take step for key inside Redis.
func (s *RedisStore) Take(ctx context.Context, key string, limit Limit) (Decision, error) {
	now := float64(s.now().UnixMicro()) / 1e6
	values, err := s.script.Run(ctx, s.client, []string{s.prefix + key},
		limit.Capacity,
		limit.RefillRate,
		now,
		s.idleTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis bucket %s: %w", key, err)
	}
	if len(values) != 3 {
		return Decision{}, fmt.Errorf("redis bucket %s: unexpected script result %v", key, values)
	}

	allowed, _ := values[0].(int64)
	remaining, err := toFloat(values[1])
	if err != nil {
		return Decision{}, fmt.Errorf("redis bucket %s: %w", key, err)
	}
	wait, err := toFloat(values[2])
	if err != nil {
		return Decision{}, fmt.Errorf("redis bucket %s: %w", key, err)
	}

	return Decision{
		Allowed:    allowed == 1,
		Remaining:  remaining,
		RetryAfter: time.Duration(wait * float64(time.Second)),
	}, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidLimit is returned for a Limit with no capacity or refill rate.
	ErrInvalidLimit = errors.New("invalid limit")
	// ErrLimitConflict is returned when a key is requested again with a
	// different Limit than the one it was first registered with.
	ErrLimitConflict = errors.New("conflicting limit for key")
)

// Limit configures a token bucket.
type Limit struct {
	Capacity   int     `yaml:"capacity" json:"capacity"`             // maximum tokens held, also the burst size
	RefillRate float64 `yaml:"refill_per_sec" json:"refill_per_sec"` // tokens earned per second
}

// Validate reports whether the limit can back a bucket.
func (l Limit) Validate() error {
	if l.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidLimit, l.Capacity)
	}
	if l.RefillRate <= 0 {
		return fmt.Errorf("%w: refill rate must be greater than 0, got %g", ErrInvalidLimit, l.RefillRate)
	}
	return nil
}

// waitFor returns how long it takes to earn the given number of tokens.
func (l Limit) waitFor(tokens float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	return time.Duration(tokens / l.RefillRate * float64(time.Second))
}

// Decision is the outcome of a single take attempt.
type Decision struct {
	Allowed    bool
	Remaining  float64       // tokens left after the decision
	RetryAfter time.Duration // zero when allowed
}

// Store holds bucket state and performs the refill-and-take step atomically.
type Store interface {
	Take(ctx context.Context, key string, limit Limit) (Decision, error)
}

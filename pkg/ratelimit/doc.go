// Package ratelimit gates outbound calls to named external resources with a
// token bucket.
//
// A Registry owns the bucket state for every resource key it hands out. Two
// limiters obtained from the same Registry for the same key share one bucket,
// so independent call sites coordinate correctly:
//
//	reg := ratelimit.NewRegistry(ratelimit.NewMemoryStore())
//	lim, err := reg.Limiter("scryfall", ratelimit.Limit{Capacity: 8, RefillRate: 8})
//	if err != nil {
//		return err
//	}
//	if err := lim.Acquire(ctx); err != nil {
//		return err // ctx ended before a token became available
//	}
//
// # Buckets
//
// Each bucket holds up to Capacity tokens and earns RefillRate tokens per
// second. A bucket is created full on first use. Every admitted call consumes
// one token; when none is left, Acquire sleeps until the store reports a token
// should be available (capped at the poll interval) and tries again. Waiters
// are not queued, so admission order among them is not FIFO.
//
// # Backends
//
//   - MemoryStore keeps buckets in a mutex-guarded map local to the process.
//   - RedisStore runs the same refill-and-take step atomically in Redis with a
//     Lua script, so several processes share one budget per key.
//
// # Conflicting limits
//
// The first Limiter call for a key fixes that key's Limit. A later call with a
// different Limit fails with ErrLimitConflict rather than silently reusing or
// replacing the existing bucket.
package ratelimit

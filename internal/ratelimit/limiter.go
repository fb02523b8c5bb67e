// Package ratelimit provides per-key token bucket rate limiting with lazy
// refill and idle bucket eviction. The same limiter guards outbound calls to
// the game data API and, through Middleware, inbound HTTP requests.
package ratelimit

import "time"

// Limiter defines the rate limiting contract. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// TryConsume takes one token from the bucket for key, creating a full
	// bucket on first use.
	TryConsume(key string) Result

	// Status reports the bucket state for key without consuming a token.
	Status(key string) Result

	// Reset forgets the bucket for key. The next call starts with a full bucket.
	Reset(key string)

	// ResetAll forgets every bucket.
	ResetAll()

	// BucketCount returns the number of keys currently tracked.
	BucketCount() int

	// Cleanup evicts buckets idle for longer than the bucket TTL and returns
	// how many were removed.
	Cleanup() int

	// Close stops background goroutines and releases all buckets.
	Close()
}

// Result is the outcome of a TryConsume or Status call.
type Result struct {
	Allowed    bool          // Whether a token was (or is) available
	Limit      int           // Bucket capacity
	Remaining  int           // Whole tokens left after the call
	ResetAt    time.Time     // When the bucket will be full again; zero if it never refills
	RetryAfter time.Duration // Wait until the next token; meaningful only when denied and Refills()
}

// Refills reports whether the bucket will ever return to full capacity.
// It is false only when the bucket is below capacity and refill is disabled.
func (r Result) Refills() bool {
	return !r.ResetAt.IsZero()
}

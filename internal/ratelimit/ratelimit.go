// Package ratelimit provides a blocking leaky-bucket limiter for outbound
// LLM and embedding calls. Tokens accrue at rps up to capacity; Acquire
// suspends the caller until one token is available or the context ends.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a leaky-bucket rate limiter. Safe for concurrent use.
type Bucket struct {
	mu         sync.Mutex
	rps        float64
	capacity   float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time // injectable clock for testing
}

// New creates a bucket emitting at most rps calls per second with the given
// burst capacity. The bucket starts full. rps and capacity must be positive;
// non-positive values fall back to 1.
func New(rps float64, capacity int) *Bucket {
	if rps <= 0 {
		rps = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Bucket{
		rps:        rps,
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill accrues tokens for elapsed time. Must be called with mu held.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(b.capacity, b.tokens+elapsed*b.rps)
	b.lastRefill = now
}

// TryAcquire consumes a token if one is available without blocking.
func (b *Bucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}
	return false
}

// Acquire blocks until a token is available or ctx is done. Cancellation is
// the only way out of a starved bucket.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refill()
		if b.tokens >= 1.0 {
			b.tokens -= 1.0
			b.mu.Unlock()
			return nil
		}
		// Sleep just long enough for one token to accrue.
		wait := time.Duration((1.0 - b.tokens) / b.rps * float64(time.Second))
		b.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Package breaker implements a circuit breaker per external dependency.
// When a dependency keeps failing, the breaker opens and remaining work is
// skipped instead of aborting the whole document run.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	Closed   State = iota // calls pass through
	Open                  // calls rejected until cooldown elapses
	HalfOpen              // a limited number of probes allowed
)

// Breaker is a closed/open/half-open circuit breaker. Thread-safe.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	trials           int
	failureThreshold int
	cooldown         time.Duration
	halfOpenTrials   int
	lastFailure      time.Time
	now              func() time.Time // injectable clock for testing
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets the consecutive failure count that opens the
// breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithCooldown sets how long the breaker stays open before allowing probes.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) { b.cooldown = d }
}

// WithHalfOpenTrials sets how many probe calls half-open permits.
func WithHalfOpenTrials(n int) Option {
	return func(b *Breaker) { b.halfOpenTrials = n }
}

// WithClock sets a custom clock function (for testing).
func WithClock(fn func() time.Time) Option {
	return func(b *Breaker) { b.now = fn }
}

// New creates a breaker with defaults: 5 failures to open, 30s cooldown,
// 2 half-open trials.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:            Closed,
		failureThreshold: 5,
		cooldown:         30 * time.Second,
		halfOpenTrials:   2,
		now:              time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Allow reports whether a call may proceed. While open it returns false
// until the cooldown elapses; in half-open it permits up to the configured
// number of probes.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.trials < b.halfOpenTrials {
			b.trials++
			return true
		}
		return false
	default:
		return false
	}
}

// Success records a successful call and closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.trials = 0
}

// Failure records a failed call. In closed state it opens the breaker once
// the threshold is reached; in half-open it reopens immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = b.now()
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = Open
		}
	case HalfOpen:
		b.state = Open
		b.trials = 0
	}
}

// State returns the current state after applying the cooldown transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// maybeHalfOpen moves an open breaker to half-open once the cooldown has
// elapsed. Must be called with mu held.
func (b *Breaker) maybeHalfOpen() {
	if b.state == Open && b.now().Sub(b.lastFailure) >= b.cooldown {
		b.state = HalfOpen
		b.trials = 0
	}
}

package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := New(WithFailureThreshold(3))
	for i := 0; i < 2; i++ {
		b.Failure()
		assert.True(t, b.Allow())
	}
	b.Failure()
	assert.Equal(t, Open, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(WithFailureThreshold(2))
	b.Failure()
	b.Success()
	b.Failure()
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	b := New(WithFailureThreshold(1), WithCooldown(10*time.Second), WithHalfOpenTrials(2), WithClock(clock))

	b.Failure()
	assert.False(t, b.Allow())

	now = now.Add(11 * time.Second)
	assert.Equal(t, HalfOpen, b.State())
	// Exactly two probes pass, then half-open throttles.
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	b := New(WithFailureThreshold(1), WithCooldown(10*time.Second), WithClock(clock))

	b.Failure()
	now = now.Add(11 * time.Second)
	assert.True(t, b.Allow())

	b.Failure()
	assert.Equal(t, Open, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	b := New(WithFailureThreshold(1), WithCooldown(10*time.Second), WithClock(clock))

	b.Failure()
	now = now.Add(11 * time.Second)
	assert.True(t, b.Allow())

	b.Success()
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.Allow())
}

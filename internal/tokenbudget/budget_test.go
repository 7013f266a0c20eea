package tokenbudget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudget_ZeroTotalIsExhausted(t *testing.T) {
	b := New(0)
	assert.True(t, b.Exhausted())
	assert.False(t, b.CanAfford("any prompt", 100))
}

func TestBudget_ChargeAccumulates(t *testing.T) {
	b := New(10_000)
	prompt := strings.Repeat("kata ", 100)

	assert.True(t, b.CanAfford(prompt, 200))
	b.Charge(prompt, 200)
	used := b.Used()
	assert.Positive(t, used)

	b.Charge(prompt, 200)
	assert.Equal(t, 2*used, b.Used())
}

func TestBudget_HeadroomStopsBeforeTotal(t *testing.T) {
	b := New(1000)
	// Spending 900 of 1000 hits the 90% line.
	b.Charge("", 900)
	assert.True(t, b.Exhausted())
	assert.False(t, b.CanAfford("", 1))

	b = New(1000)
	b.Charge("", 800)
	assert.False(t, b.Exhausted())
	assert.True(t, b.CanAfford("", 100))
	assert.False(t, b.CanAfford("", 101))
}

// Package tokenbudget enforces the per-phase token spend cap. Estimates use
// the shared tokenizer approximation; 10% of the budget is held back as
// headroom for response variance.
package tokenbudget

import (
	"sync"

	"github.com/adiwibowo/perkaya/internal/tokenizer"
)

// headroom is the fraction of the budget that must remain unspent.
const headroom = 0.90

// Budget tracks token spend for one phase. Safe for concurrent use.
type Budget struct {
	mu    sync.Mutex
	total int
	used  int
}

// New returns a budget with the given total token allowance.
func New(total int) *Budget {
	return &Budget{total: total}
}

// Estimate returns the approximate token count of text.
func (b *Budget) Estimate(text string) int {
	return tokenizer.Estimate(text)
}

// CanAfford reports whether charging prompt plus maxOut output tokens would
// keep spend within 90% of the total.
func (b *Budget) CanAfford(prompt string, maxOut int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.used+tokenizer.Estimate(prompt)+maxOut) <= headroom*float64(b.total)
}

// Charge records spend for prompt plus maxOut output tokens.
func (b *Budget) Charge(prompt string, maxOut int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used += tokenizer.Estimate(prompt) + maxOut
}

// Used returns tokens charged so far.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Total returns the configured allowance.
func (b *Budget) Total() int {
	return b.total
}

// Exhausted reports whether spend has reached 90% of the total. Phase loops
// use this for early exit: once true, no new work is launched.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.used) >= headroom*float64(b.total)
}

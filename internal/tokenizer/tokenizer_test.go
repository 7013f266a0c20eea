package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("dan"))
	// 8 runes -> 2 tokens by the 4-chars heuristic.
	assert.Equal(t, 2, Estimate("asuransi"))
	// Short word runs floor the estimate at the word count.
	assert.Equal(t, 4, Estimate("a b c d"))
}

func TestEstimate_ScalesWithLength(t *testing.T) {
	short := Estimate("Premi dasar dibayar berkala.")
	long := Estimate(strings.Repeat("Premi dasar dibayar berkala. ", 10))
	assert.Greater(t, long, short*5)
}

func TestIsBoundary(t *testing.T) {
	text := "nilai tunai, bersih"
	assert.True(t, IsBoundary(text, 0))
	assert.True(t, IsBoundary(text, len(text)))
	assert.True(t, IsBoundary(text, 5))  // before the space
	assert.True(t, IsBoundary(text, 6))  // after the space
	assert.True(t, IsBoundary(text, 11)) // before the comma
	assert.False(t, IsBoundary(text, 2)) // mid-word "ni|lai"
}

func TestAdjustLeft(t *testing.T) {
	text := "nilai tunai bersih"
	// Mid-word position shifts left to the space boundary.
	assert.Equal(t, 6, AdjustLeft(text, 8, 8))
	// Already on a boundary: unchanged.
	assert.Equal(t, 6, AdjustLeft(text, 6, 8))
	// No boundary within range: unchanged.
	assert.Equal(t, 9, AdjustLeft(text, 9, 1))
}

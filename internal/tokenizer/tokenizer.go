// Package tokenizer approximates a BPE encoding for budgeting and for
// token-boundary checks during anchoring. The approximation is calibrated
// for mixed Indonesian/English financial prose: roughly one token per four
// characters, floored at one token per word run.
package tokenizer

import (
	"unicode"
	"unicode/utf8"
)

// charsPerToken is the BPE average for Latin-script prose.
const charsPerToken = 4

// Estimate returns the approximate token count of text. It never returns a
// value below the number of word runs, since no BPE merges across
// whitespace.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	chars := utf8.RuneCountInString(text)
	byChars := (chars + charsPerToken - 1) / charsPerToken

	words := 0
	inWord := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	if words > byChars {
		return words
	}
	return byChars
}

// IsBoundary reports whether byte offset pos in text falls on a token
// boundary: the start or end of the text, or a position whose left
// neighbour is whitespace, punctuation or a symbol. Mid-word positions are
// not boundaries because a BPE piece would straddle them.
func IsBoundary(text string, pos int) bool {
	if pos <= 0 || pos >= len(text) {
		return true
	}
	left, _ := utf8.DecodeLastRuneInString(text[:pos])
	right, _ := utf8.DecodeRuneInString(text[pos:])
	if left == utf8.RuneError || right == utf8.RuneError {
		return false
	}
	if unicode.IsSpace(left) || unicode.IsSpace(right) {
		return true
	}
	if unicode.IsPunct(left) || unicode.IsSymbol(left) {
		return true
	}
	if unicode.IsPunct(right) || unicode.IsSymbol(right) {
		return true
	}
	return false
}

// AdjustLeft moves pos left to the nearest token boundary within maxShift
// bytes. When no boundary is found in range, pos is returned unchanged.
func AdjustLeft(text string, pos, maxShift int) int {
	if IsBoundary(text, pos) {
		return pos
	}
	for p := pos - 1; p >= 0 && pos-p <= maxShift; p-- {
		if IsBoundary(text, p) {
			return p
		}
	}
	return pos
}

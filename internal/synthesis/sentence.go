package synthesis

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxSentenceLen caps the sentence span recorded for one anchor.
const DefaultMaxSentenceLen = 400

// sentenceWindow bounds how far the span expansion scans in each direction.
const sentenceWindow = 400

func isSentencePunct(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

// expandSentence grows [matchStart, matchEnd) to the enclosing sentence:
// backwards to just past the previous terminator or newline, forwards to
// just past the next one. Each direction scans at most sentenceWindow bytes;
// the resulting span is clamped to maxLen keeping the sentence end.
func expandSentence(doc string, matchStart, matchEnd, maxLen int) (int, int) {
	if maxLen <= 0 {
		maxLen = DefaultMaxSentenceLen
	}

	low := max(0, matchStart-sentenceWindow)
	pos := matchStart
	for pos > low {
		r, size := utf8.DecodeLastRuneInString(doc[:pos])
		if isSentencePunct(r) || r == '\n' {
			break
		}
		pos -= size
	}
	start := pos
	// Skip leading whitespace so the span starts on prose.
	for start < matchStart && (doc[start] == ' ' || doc[start] == '\t') {
		start++
	}

	high := min(len(doc), matchEnd+sentenceWindow)
	end := high
	for i := matchEnd; i < high; {
		r, size := utf8.DecodeRuneInString(doc[i:])
		if isSentencePunct(r) {
			end = i + size
			break
		}
		if r == '\n' {
			end = i
			break
		}
		i += size
	}

	if end-start > maxLen {
		start = end - maxLen
		if start > matchStart {
			start = matchStart
			end = min(start+maxLen, len(doc))
		}
	}
	return start, end
}

// locateContext finds the original context inside doc. Exact match first,
// then the 40-character prefix, then sliding windows of 5, 4 and 3
// consecutive words. Returns the matched span, or ok=false when nothing in
// the context survives in the document.
func locateContext(doc, context string) (int, int, bool) {
	context = strings.TrimSpace(context)
	if context == "" {
		return 0, 0, false
	}
	if i := strings.Index(doc, context); i >= 0 {
		return i, i + len(context), true
	}
	if len(context) > 40 {
		prefix := context[:40]
		if i := strings.Index(doc, prefix); i >= 0 {
			return i, i + len(prefix), true
		}
	}
	words := strings.Fields(context)
	for _, size := range []int{5, 4, 3} {
		if len(words) < size {
			continue
		}
		for off := 0; off+size <= len(words); off++ {
			window := strings.Join(words[off:off+size], " ")
			if i := strings.Index(doc, window); i >= 0 {
				return i, i + len(window), true
			}
		}
	}
	return 0, 0, false
}

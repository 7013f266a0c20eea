package synthesis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/adiwibowo/perkaya/internal/tokenizer"
	"github.com/adiwibowo/perkaya/internal/types"
)

// insertScanLimit bounds the forward scan for a safe insertion point past
// the sentence end.
const insertScanLimit = 120

// maxBoundaryShift bounds the leftward token-boundary adjustment.
const maxBoundaryShift = 8

var (
	markerRe      = regexp.MustCompile(`\[\^fn\d+\]`)
	footnoteDefRe = regexp.MustCompile(`(?m)^\[\^fn\d+\]:[^\n]*\n?`)
	placeholderRe = regexp.MustCompile(`\[\[FN:([^\]]+)\]\]`)
)

// stripPrior removes all footnote markers, footnote definition lines and the
// trailing Footnotes/Appendix sections from a previous synthesis run.
// Returns the cleaned document and the number of markers removed.
func stripPrior(doc string) (string, int) {
	for _, heading := range []string{"\n## Footnotes", "\n## Appendix"} {
		if i := strings.LastIndex(doc, heading); i >= 0 {
			doc = doc[:i]
		}
		if strings.HasPrefix(doc, heading[1:]) {
			doc = ""
		}
	}
	stripped := 0
	doc = markerRe.ReplaceAllStringFunc(doc, func(string) string {
		stripped++
		return ""
	})
	doc = footnoteDefRe.ReplaceAllString(doc, "")
	return doc, stripped
}

// insertionPoint picks the nearest safe position at or after sentenceEnd,
// scanning forward up to insertScanLimit bytes. Whitespace positions win
// over non-whitespace ones; the chosen position is pulled left to a token
// boundary. Returns -1 when no safe position exists in range.
func insertionPoint(doc string, sentenceEnd int) int {
	limit := min(len(doc), sentenceEnd+insertScanLimit)
	fallback := -1
	for p := sentenceEnd; p <= limit; p++ {
		if !safeAt(doc, p) {
			continue
		}
		if p == len(doc) || doc[p] == ' ' || doc[p] == '\n' || doc[p] == '\t' {
			return tokenizer.AdjustLeft(doc, p, maxBoundaryShift)
		}
		if fallback < 0 {
			fallback = p
		}
	}
	if fallback >= 0 {
		return tokenizer.AdjustLeft(doc, fallback, maxBoundaryShift)
	}
	return -1
}

// placement records one placeholder insertion before renumbering.
type placement struct {
	suggestionID string
	sentenceSpan [2]int
}

// anchorOne attempts to place the placeholder for one suggestion into doc.
// The document grows by the placeholder length on success.
func anchorOne(doc string, sug types.Suggestion, maxSentenceLen int) (string, *placement) {
	matchStart, matchEnd, ok := locateContext(doc, sug.OriginalContext)
	if !ok {
		return doc, nil
	}
	start, end := expandSentence(doc, matchStart, matchEnd, maxSentenceLen)
	pos := insertionPoint(doc, end)
	if pos < 0 {
		return doc, nil
	}
	marker := "[[FN:" + sug.ID + "]]"
	doc = doc[:pos] + marker + doc[pos:]
	return doc, &placement{suggestionID: sug.ID, sentenceSpan: [2]int{start, end}}
}

// renumber rewrites placeholders as [^fnN] markers numbered by first
// appearance in document order. The same suggestion id always maps to the
// same number. Returns the final document, the id→number assignment in
// order, and the final byte position of each marker keyed by fn name.
func renumber(doc string) (string, []string, map[string]int) {
	numbers := make(map[string]int)
	order := []string{}
	positions := make(map[string]int)

	var out strings.Builder
	last := 0
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(doc, -1) {
		id := doc[m[2]:m[3]]
		n, seen := numbers[id]
		if !seen {
			n = len(order) + 1
			numbers[id] = n
			order = append(order, id)
		}
		out.WriteString(doc[last:m[0]])
		name := fmt.Sprintf("fn%d", n)
		if !seen {
			positions[name] = out.Len()
		}
		out.WriteString("[^" + name + "]")
		last = m[1]
	}
	out.WriteString(doc[last:])
	return out.String(), order, positions
}

// Package synthesis rebuilds the enriched Markdown from the source document
// and the current suggestion set. Footnote markers are anchored at safe
// positions after sentence ends; suggestions whose context cannot be located
// degrade to an appendix section. The rebuild is idempotent: the same inputs
// always produce byte-identical output.
package synthesis

import (
	"regexp"
	"strings"
)

var (
	headingRe = regexp.MustCompile(`^#{1,6}\s`)
	linkRe    = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)
	urlRe     = regexp.MustCompile(`https?://[^\s)\]>"']+`)
)

// lineBounds returns the [start, end) byte span of the line containing pos.
func lineBounds(doc string, pos int) (int, int) {
	start := strings.LastIndexByte(doc[:pos], '\n') + 1
	end := strings.IndexByte(doc[pos:], '\n')
	if end < 0 {
		end = len(doc)
	} else {
		end += pos
	}
	return start, end
}

// safeAt reports whether byte offset pos is a safe insertion position: not
// inside a URL, a Markdown link, an open inline-code run, a heading line or
// an HTML tag.
func safeAt(doc string, pos int) bool {
	if pos < 0 || pos > len(doc) {
		return false
	}
	start, end := lineBounds(doc, min(pos, len(doc)))
	line := doc[start:end]
	rel := pos - start

	if headingRe.MatchString(line) {
		return false
	}
	// An odd backtick count between line start and pos means pos sits inside
	// an inline-code run.
	if strings.Count(line[:min(rel, len(line))], "`")%2 == 1 {
		return false
	}
	for _, m := range linkRe.FindAllStringIndex(line, -1) {
		if rel > m[0] && rel < m[1] {
			return false
		}
	}
	for _, m := range urlRe.FindAllStringIndex(line, -1) {
		if rel > m[0] && rel < m[1] {
			return false
		}
	}
	// Inside an HTML tag: an unclosed '<' to the left on the same line.
	if open := strings.LastIndexByte(line[:min(rel, len(line))], '<'); open >= 0 {
		if !strings.ContainsRune(line[open:min(rel, len(line))], '>') {
			return false
		}
	}
	return true
}

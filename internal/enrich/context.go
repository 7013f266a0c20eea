// Package enrich generates enrichment bodies for plan items: a first-pass
// sketch per item, then a refine pass over the most confident sketches.
// All content derives from local context read back out of the source
// segments.
package enrich

import (
	"sort"
	"strings"

	"github.com/adiwibowo/perkaya/internal/types"
)

// maxLocalContext bounds the context handed to the model.
const maxLocalContext = 1000

// BuildLocalContext assembles the model context for one provenance: the
// segment text joined with its ±1 neighbors on the same page (ordered by
// char_start), prefixed with the header path. Truncated to 1000 chars.
func BuildLocalContext(prov types.Provenance, segments []types.Segment) string {
	var primary *types.Segment
	var samePage []*types.Segment
	for i := range segments {
		seg := &segments[i]
		if seg.SegmentID == prov.SegID {
			primary = seg
		}
		if seg.Page == prov.Page {
			samePage = append(samePage, seg)
		}
	}
	if primary == nil {
		return ""
	}

	sort.SliceStable(samePage, func(i, j int) bool {
		return samePage[i].CharStart < samePage[j].CharStart
	})
	pos := -1
	for i, seg := range samePage {
		if seg.SegmentID == primary.SegmentID {
			pos = i
			break
		}
	}

	parts := make([]string, 0, 3)
	if pos > 0 {
		parts = append(parts, samePage[pos-1].Text)
	}
	parts = append(parts, primary.Text)
	if pos >= 0 && pos+1 < len(samePage) {
		parts = append(parts, samePage[pos+1].Text)
	}

	var sb strings.Builder
	if len(primary.HeaderPath) > 0 {
		sb.WriteString(strings.Join(primary.HeaderPath, " > "))
		sb.WriteString("\n\n")
	}
	sb.WriteString(strings.Join(parts, "\n"))

	ctx := sb.String()
	if len(ctx) > maxLocalContext {
		ctx = ctx[:maxLocalContext]
	}
	return ctx
}

// OriginalContext extracts the anchoring context for a suggestion: the
// primary segment's text, truncated to the suggestion cap.
func OriginalContext(prov types.Provenance, segments []types.Segment) string {
	for i := range segments {
		if segments[i].SegmentID == prov.SegID {
			text := segments[i].Text
			if len(text) > types.MaxOriginalContext {
				text = text[:types.MaxOriginalContext]
			}
			return text
		}
	}
	return ""
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

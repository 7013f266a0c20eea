package synthesis

import (
	"fmt"
	"strings"

	"github.com/adiwibowo/perkaya/internal/artifacts"
	"github.com/adiwibowo/perkaya/internal/metrics"
	"github.com/adiwibowo/perkaya/internal/types"
)

// ReasonContextNotFound is the skip reason for suggestions whose original
// context no longer exists in the document.
const ReasonContextNotFound = "context_not_found"

// Options configures one synthesis run.
type Options struct {
	MaxSentenceLen int
	ApprovedOnly   bool
}

// Synthesizer rebuilds markdown_v2.md from markdown_v1.md plus the current
// suggestion set.
type Synthesizer struct {
	Dir      *artifacts.Dir
	Registry *metrics.Registry
}

// Run performs the full synthesis pass and writes markdown_v2.md,
// anchors_map.json and synthesis_report.json. A suggestion that cannot be
// anchored goes to the appendix; nothing short of an I/O failure aborts the
// run.
func (s *Synthesizer) Run(docID string, opts Options) (*types.SynthesisReport, error) {
	if err := s.Dir.Require(artifacts.FileMarkdownV1, artifacts.FileSuggestions); err != nil {
		return nil, err
	}
	source, err := s.Dir.ReadRaw(artifacts.FileMarkdownV1)
	if err != nil {
		return nil, err
	}
	var suggestions []types.Suggestion
	if err := s.Dir.ReadJSON(artifacts.FileSuggestions, &suggestions); err != nil {
		return nil, err
	}
	if opts.ApprovedOnly {
		kept := suggestions[:0]
		for _, sug := range suggestions {
			if sug.Status == types.StatusApproved {
				kept = append(kept, sug)
			}
		}
		suggestions = kept
	}

	doc, anchors, report := Synthesize(docID, string(source), suggestions, opts.MaxSentenceLen)

	if err := s.Dir.WriteRaw(artifacts.FileMarkdownV2, []byte(doc)); err != nil {
		return nil, err
	}
	if err := s.Dir.WriteJSON(artifacts.FileAnchorsMap, anchors); err != nil {
		return nil, err
	}
	if err := s.Dir.WriteJSON(artifacts.FileSynthesisReport, report); err != nil {
		return nil, err
	}
	if s.Registry != nil {
		s.Registry.Emit("synthesis", "progress", map[string]float64{
			"processed": float64(report.SuggestionsIn),
			"total":     float64(report.SuggestionsIn),
		}, nil)
		s.Registry.Flush()
	}
	return report, nil
}

// Synthesize is the pure core: source Markdown in, enriched Markdown plus
// anchor map and report out. With no suggestions the output equals the
// stripped source with a single trailing newline and no extra sections.
func Synthesize(docID, source string, suggestions []types.Suggestion, maxSentenceLen int) (string, *types.AnchorMap, *types.SynthesisReport) {
	doc, strippedCount := stripPrior(source)
	doc = strings.TrimRight(doc, "\n") + "\n"

	anchors := &types.AnchorMap{
		Anchors: make(map[string]types.AnchorEntry),
		Skips:   make(map[string]types.SkipEntry),
	}
	report := &types.SynthesisReport{
		DocID:           docID,
		SuggestionsIn:   len(suggestions),
		StrippedMarkers: strippedCount,
	}

	if len(suggestions) == 0 {
		report.OutputBytes = len(doc)
		return doc, anchors, report
	}

	byID := make(map[string]types.Suggestion, len(suggestions))
	spans := make(map[string][2]int)
	var skipped []types.Suggestion
	for _, sug := range suggestions {
		byID[sug.ID] = sug
		var placed *placement
		doc, placed = anchorOne(doc, sug, maxSentenceLen)
		if placed == nil {
			skipped = append(skipped, sug)
			continue
		}
		spans[sug.ID] = placed.sentenceSpan
	}

	doc, order, positions := renumber(doc)

	for i, id := range order {
		name := fmt.Sprintf("fn%d", i+1)
		anchors.Anchors[name] = types.AnchorEntry{
			SuggestionID: id,
			Position:     positions[name],
			SentenceSpan: spans[id],
			Inserted:     true,
		}
	}
	for i, sug := range skipped {
		anchors.Skips[fmt.Sprintf("skip%d", i+1)] = types.SkipEntry{
			SuggestionID: sug.ID,
			Inserted:     false,
			Reason:       ReasonContextNotFound,
		}
	}
	report.Inserted = len(order)
	report.Appendix = len(skipped)

	var out strings.Builder
	out.WriteString(strings.TrimRight(doc, "\n"))
	out.WriteString("\n")

	if len(order) > 0 {
		out.WriteString("\n## Footnotes\n\n")
		for i, id := range order {
			out.WriteString(fmt.Sprintf("[^fn%d]: %s\n", i+1, byID[id].GeneratedContent))
		}
		report.FootnoteSections = 1
	}
	if len(skipped) > 0 {
		out.WriteString("\n## Appendix\n\n")
		for _, sug := range skipped {
			out.WriteString(fmt.Sprintf("- %s: %s\n", sug.Label, sug.GeneratedContent))
		}
	}

	final := out.String()
	report.OutputBytes = len(final)
	return final, anchors, report
}

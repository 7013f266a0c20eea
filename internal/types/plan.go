package types

// LabeledCandidate is one short label proposed by the skim pass, with the
// model's self-reported confidence.
type LabeledCandidate struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// SkimResult is the per-segment output of the skim pass. Both lists are
// capped at two entries; empty lists are valid.
type SkimResult struct {
	SegmentHash        string             `json:"segment_hash"`
	TermsToDefine      []LabeledCandidate `json:"terms_to_define"`
	ConceptsToSimplify []LabeledCandidate `json:"concepts_to_simplify"`
}

// Provenance points back into the source document: which segment, which
// page, which header path and which character span produced an item.
type Provenance struct {
	SegID      string   `json:"seg_id"`
	Page       int      `json:"page"`
	HeaderPath []string `json:"header_path"`
	Char       [2]int   `json:"char"`
}

// PlanEntry is one ranked enrichment candidate emitted by reduce. Label is
// the display form; entries within a plan section are unique by normalized
// label.
type PlanEntry struct {
	Label       string       `json:"label"`
	Score       float64      `json:"score"`
	Provenances []Provenance `json:"provenances"`
}

// Plan is the ranked set of candidate enrichment items. Written atomically
// once reduce completes; partial plans are written during skim for restart
// and observability.
type Plan struct {
	DocID              string      `json:"doc_id"`
	TermsToDefine      []PlanEntry `json:"terms_to_define"`
	ConceptsToSimplify []PlanEntry `json:"concepts_to_simplify"`
}

// Total returns the combined entry count across both sections.
func (p *Plan) Total() int {
	return len(p.TermsToDefine) + len(p.ConceptsToSimplify)
}

// ItemType distinguishes the two enrichment categories.
type ItemType string

const (
	ItemTerm    ItemType = "term"
	ItemConcept ItemType = "concept"
)

// EnrichmentItem is one unit of enrichment work: a plan entry flattened with
// its document, category and primary provenance.
type EnrichmentItem struct {
	DocID      string     `json:"doc_id"`
	Type       ItemType   `json:"type"`
	Label      string     `json:"label"`
	Provenance Provenance `json:"provenance"`
	Score      float64    `json:"score"`
}

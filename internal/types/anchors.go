package types

// AnchorEntry records where one footnote marker landed in the enriched
// document. Position is a byte offset into markdown_v2.md; SentenceSpan is
// the [start, end) span of the sentence the marker annotates.
type AnchorEntry struct {
	SuggestionID string `json:"suggestion_id"`
	Position     int    `json:"position"`
	SentenceSpan [2]int `json:"sentence_span"`
	Inserted     bool   `json:"inserted"`
}

// SkipEntry records a suggestion that could not be anchored and was routed
// to the appendix instead.
type SkipEntry struct {
	SuggestionID string `json:"suggestion_id"`
	Inserted     bool   `json:"inserted"`
	Reason       string `json:"reason"`
}

// AnchorMap is the full anchoring outcome for one synthesis run: fnN keys
// for inserted markers, skipN keys for appendix fallbacks.
type AnchorMap struct {
	Anchors map[string]AnchorEntry `json:"anchors"`
	Skips   map[string]SkipEntry   `json:"skips"`
}

// SynthesisReport summarizes one synthesis run.
type SynthesisReport struct {
	DocID            string `json:"doc_id"`
	SuggestionsIn    int    `json:"suggestions_in"`
	Inserted         int    `json:"inserted"`
	Appendix         int    `json:"appendix"`
	StrippedMarkers  int    `json:"stripped_markers"`
	OutputBytes      int    `json:"output_bytes"`
	FootnoteSections int    `json:"footnote_sections"`
}

// PhaseStatus is the terminal state of a pipeline phase.
type PhaseStatus string

const (
	PhaseRunning   PhaseStatus = "running"
	PhaseDone      PhaseStatus = "done"
	PhaseCancelled PhaseStatus = "cancelled"
	PhaseFailed    PhaseStatus = "failed"
)

// PhaseProgress is the on-disk progress record for a phase
// (phase_1_progress.json, phase_2_progress.json).
type PhaseProgress struct {
	Phase     string      `json:"phase"`
	Status    PhaseStatus `json:"status"`
	Processed int         `json:"processed"`
	Total     int         `json:"total"`
	TokenUsed int         `json:"token_used"`
	Timeouts  int         `json:"timeouts"`
	CacheHits int         `json:"cache_hits"`
	Error     string      `json:"error,omitempty"`
}

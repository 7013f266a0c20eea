package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerationMode distinguishes the two enrichment passes.
type GenerationMode string

const (
	ModeSketch GenerationMode = "sketch"
	ModeRefine GenerationMode = "refine"
)

// Word caps per generation mode. Content over the cap is rejected at parse
// time; insufficient context yields empty content with zero confidence.
const (
	SketchMaxWords = 120
	RefineMaxWords = 160
)

// GeneratedContent is the model output for one plan item. Content derives
// only from the local context handed to the model.
type GeneratedContent struct {
	Label      string         `json:"label"`
	Type       ItemType       `json:"type"`
	Mode       GenerationMode `json:"mode"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence"`
	Provenance Provenance     `json:"provenance"`
}

// SuggestionStatus is the review state of a suggestion.
type SuggestionStatus string

const (
	StatusPending  SuggestionStatus = "pending"
	StatusApproved SuggestionStatus = "approved"
	StatusRejected SuggestionStatus = "rejected"
)

// Suggestion is the UI-facing record combining a plan item, its generated
// content and the anchoring context used by synthesis.
type Suggestion struct {
	ID               string           `json:"id"`
	Type             ItemType         `json:"type"`
	Label            string           `json:"label"`
	OriginalContext  string           `json:"original_context"`
	GeneratedContent string           `json:"generated_content"`
	ConfidenceScore  float64          `json:"confidence_score"`
	Status           SuggestionStatus `json:"status"`
}

// MaxOriginalContext bounds the anchoring context carried on a suggestion.
const MaxOriginalContext = 400

// SuggestionID derives the deterministic suggestion id from the document,
// category and label. The same triple always yields the same id, which keeps
// synthesis idempotent across runs.
func SuggestionID(docID string, typ ItemType, label string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s::%s::%s", docID, typ, label)))
	return "sg_" + hex.EncodeToString(sum[:8])
}

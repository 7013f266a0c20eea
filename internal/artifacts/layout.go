// Package artifacts owns the per-document artifact directory: its layout,
// atomic JSON writes and the append-only JSONL files. No other package
// writes into <artefacts>/<doc_id>/ directly.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
)

// Well-known artifact file names inside a document directory.
const (
	FileMarkdownV1         = "markdown_v1.md"
	FileSegments           = "segments.json"
	FileShards             = "shards.json"
	FileSkimResults        = "skim_results.jsonl"
	FilePlanPartial        = "plan_partial.json"
	FilePlan               = "plan.json"
	FileGeneratedContent   = "generated_content.json"
	FileSuggestionsPartial = "suggestions_partial.json"
	FileSuggestions        = "suggestions.json"
	FileMarkdownV2         = "markdown_v2.md"
	FileAnchorsMap         = "anchors_map.json"
	FileSynthesisReport    = "synthesis_report.json"
	FilePhase1Progress     = "phase_1_progress.json"
	FilePhase2Progress     = "phase_2_progress.json"
	FileMetricsLog         = "logs/metrics.jsonl"
	FileErrorsLog          = "logs/errors.jsonl"
)

// Dir is a handle to one document's artifact directory.
type Dir struct {
	Root  string
	DocID string
}

// Open returns a handle to <root>/<docID>, creating the directory and its
// logs/ subdirectory if needed.
func Open(root, docID string) (*Dir, error) {
	d := &Dir{Root: root, DocID: docID}
	if err := os.MkdirAll(filepath.Join(d.Path(), "logs"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir for %s: %w", docID, err)
	}
	return d, nil
}

// Path returns the absolute directory path.
func (d *Dir) Path() string {
	return filepath.Join(d.Root, d.DocID)
}

// File returns the absolute path of a named artifact.
func (d *Dir) File(name string) string {
	return filepath.Join(d.Path(), name)
}

// Exists reports whether a named artifact is present.
func (d *Dir) Exists(name string) bool {
	_, err := os.Stat(d.File(name))
	return err == nil
}

// MissingInputError signals a required upstream artifact is absent. The
// phase fails without touching the directory.
type MissingInputError struct {
	DocID string
	Name  string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("document %s: required artifact %s is missing", e.DocID, e.Name)
}

// Require returns a MissingInputError for each named artifact that does not
// exist yet, or nil when all are present.
func (d *Dir) Require(names ...string) error {
	for _, n := range names {
		if !d.Exists(n) {
			return &MissingInputError{DocID: d.DocID, Name: n}
		}
	}
	return nil
}

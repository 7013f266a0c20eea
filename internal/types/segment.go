// Package types defines the shared data model for the enrichment pipeline:
// extraction output (segments, shards), planner output (skim results, plan),
// enrichment output (generated content, suggestions) and synthesis output
// (anchor maps).
package types

// SegmentFlags carries boolean pre-scoring signals computed by the extractor.
type SegmentFlags struct {
	ContainsEntities bool `json:"contains_entities"`
	IsDifficult      bool `json:"is_difficult"`
}

// Segment is a contiguous text unit of the source Markdown. Segments are
// created once by extraction and never mutated; Hash identifies the text
// content across runs.
type Segment struct {
	SegmentID          string       `json:"segment_id"`
	Page               int          `json:"page"`
	HeaderPath         []string     `json:"header_path"`
	CharStart          int          `json:"char_start"`
	CharEnd            int          `json:"char_end"`
	Text               string       `json:"text"`
	NumericRatio       float64      `json:"numeric_ratio"`
	Flags              SegmentFlags `json:"flags"`
	TfidfGlossaryScore float64      `json:"tfidf_glossary_score"`
	Hash               string       `json:"hash"`
}

// Shard is a logical group of segments, usually aligned with a top-level
// section. The title feeds domain heuristics ("Definisi", "Ketentuan", ...).
type Shard struct {
	ShardID    string   `json:"id"`
	Title      string   `json:"title"`
	SegmentIDs []string `json:"segment_ids"`
}

// ShardFile is the on-disk shape of shards.json.
type ShardFile struct {
	Shards []Shard `json:"shards"`
}

// SegmentIndex provides hash- and id-keyed lookup over a segment list.
type SegmentIndex struct {
	ByID   map[string]*Segment
	ByHash map[string]*Segment
}

// NewSegmentIndex builds lookup maps over segs. The maps reference the
// backing slice; segs must not be mutated afterwards.
func NewSegmentIndex(segs []Segment) *SegmentIndex {
	idx := &SegmentIndex{
		ByID:   make(map[string]*Segment, len(segs)),
		ByHash: make(map[string]*Segment, len(segs)),
	}
	for i := range segs {
		s := &segs[i]
		idx.ByID[s.SegmentID] = s
		idx.ByHash[s.Hash] = s
	}
	return idx
}

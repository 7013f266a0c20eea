package planner

import (
	"sort"

	"github.com/adiwibowo/perkaya/internal/types"
)

// Target plan size. The cap is enforced; the floor is best-effort when the
// raw signal is low.
const (
	DefaultTopTotalMin = 200
	DefaultTopTotalMax = 300
)

// ReduceOptions tunes clustering and plan sizing.
type ReduceOptions struct {
	ClusterThreshold float64
	TopTotalMin      int
	TopTotalMax      int
}

func (o *ReduceOptions) defaults() {
	if o.ClusterThreshold <= 0 {
		o.ClusterThreshold = DefaultClusterThreshold
	}
	if o.TopTotalMin <= 0 {
		o.TopTotalMin = DefaultTopTotalMin
	}
	if o.TopTotalMax <= 0 {
		o.TopTotalMax = DefaultTopTotalMax
	}
}

// Reduce clusters skim labels across segments and emits the ranked plan.
// Skim results whose segment hash is unknown are dropped; each section is
// unique by normalized label and sorted by score descending.
func Reduce(docID string, results []types.SkimResult, idx *types.SegmentIndex, opts ReduceOptions) *types.Plan {
	opts.defaults()

	var termOccs, conceptOccs []Occurrence
	for _, res := range results {
		seg, ok := idx.ByHash[res.SegmentHash]
		if !ok {
			continue
		}
		termOccs = append(termOccs, toOccurrences(res.TermsToDefine, seg)...)
		conceptOccs = append(conceptOccs, toOccurrences(res.ConceptsToSimplify, seg)...)
	}

	terms := reduceSection(termOccs, opts.ClusterThreshold)
	concepts := reduceSection(conceptOccs, opts.ClusterThreshold)
	terms, concepts = trimSections(terms, concepts, opts.TopTotalMin, opts.TopTotalMax)

	return &types.Plan{
		DocID:              docID,
		TermsToDefine:      terms,
		ConceptsToSimplify: concepts,
	}
}

func toOccurrences(cands []types.LabeledCandidate, seg *types.Segment) []Occurrence {
	occs := make([]Occurrence, 0, len(cands))
	for _, c := range cands {
		norm := NormalizeLabel(c.Label)
		if norm == "" {
			continue
		}
		occs = append(occs, Occurrence{
			Label:      c.Label,
			Normalized: norm,
			Confidence: c.Confidence,
			Segment:    seg,
		})
	}
	return occs
}

// reduceSection clusters one label category and emits scored entries,
// unique by normalized display label.
func reduceSection(occs []Occurrence, threshold float64) []types.PlanEntry {
	clusters := Cluster(occs, threshold)

	entries := make([]types.PlanEntry, 0, len(clusters))
	seen := make(map[string]int) // normalized display label -> entry index
	for _, cl := range clusters {
		entry := types.PlanEntry{
			Label:       DisplayLabel(cl),
			Score:       ScoreCluster(cl),
			Provenances: provenances(cl),
		}
		norm := NormalizeLabel(entry.Label)
		if i, dup := seen[norm]; dup {
			// Same normalized display label from two clusters: merge into
			// the higher-scoring entry.
			if entry.Score > entries[i].Score {
				entry.Provenances = append(entries[i].Provenances, entry.Provenances...)
				entries[i] = entry
			} else {
				entries[i].Provenances = append(entries[i].Provenances, entry.Provenances...)
			}
			continue
		}
		seen[norm] = len(entries)
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Label < entries[j].Label
	})
	return entries
}

func provenances(occs []Occurrence) []types.Provenance {
	provs := make([]types.Provenance, 0, len(occs))
	for _, occ := range occs {
		provs = append(provs, types.Provenance{
			SegID:      occ.Segment.SegmentID,
			Page:       occ.Segment.Page,
			HeaderPath: occ.Segment.HeaderPath,
			Char:       [2]int{occ.Segment.CharStart, occ.Segment.CharEnd},
		})
	}
	return provs
}

// trimSections enforces the total cap, splitting approximately equally and
// never trimming a side below half the configured minimum.
func trimSections(terms, concepts []types.PlanEntry, minTotal, maxTotal int) ([]types.PlanEntry, []types.PlanEntry) {
	total := len(terms) + len(concepts)
	if total <= maxTotal {
		return terms, concepts
	}
	half := maxTotal / 2
	floor := minTotal / 2

	tTake, cTake := half, maxTotal-half
	if len(terms) < tTake {
		tTake = len(terms)
		cTake = maxTotal - tTake
	} else if len(concepts) < cTake {
		cTake = len(concepts)
		tTake = maxTotal - cTake
	}
	if tTake < floor && len(terms) >= floor {
		tTake = floor
	}
	if cTake < floor && len(concepts) >= floor {
		cTake = floor
	}
	if tTake > len(terms) {
		tTake = len(terms)
	}
	if cTake > len(concepts) {
		cTake = len(concepts)
	}
	return terms[:tTake], concepts[:cTake]
}

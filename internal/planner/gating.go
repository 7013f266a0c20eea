// Package planner selects and ranks enrichment candidates: gating pre-scores
// segments and picks per-shard quotas, skim asks the model for short labeled
// candidates, reduce clusters the labels into the ranked plan.
package planner

import (
	"math"
	"sort"
	"strings"

	"github.com/adiwibowo/perkaya/internal/types"
)

// headerKeywords mark definition-ish sections in Indonesian financial and
// insurance documents.
var headerKeywords = []string{
	"definisi", "ketentuan", "risiko", "syarat", "prosedur", "ringkasan", "glossary",
}

// Gating quotas.
const (
	defaultQuotaPerShard = 8
	definitionShardQuota = 10
	maxGlobalCandidates  = 2000
	candidateFraction    = 0.015
)

// Candidate is a gated segment with its shard and pre-score.
type Candidate struct {
	Segment  *types.Segment
	ShardID  string
	PreScore float64
}

// headerWeight is 1 when any header path element contains a domain keyword.
func headerWeight(headerPath []string) float64 {
	for _, h := range headerPath {
		lower := strings.ToLower(h)
		for _, kw := range headerKeywords {
			if strings.Contains(lower, kw) {
				return 1
			}
		}
	}
	return 0
}

// PreScore computes the gating score for one segment.
func PreScore(seg *types.Segment) float64 {
	score := 0.0
	if seg.Flags.ContainsEntities {
		score += 1.2
	}
	if seg.Flags.IsDifficult {
		score += 0.8
	}
	score += 0.6 * headerWeight(seg.HeaderPath)
	score += 0.4 * seg.NumericRatio
	score += 0.4 * seg.TfidfGlossaryScore
	return score
}

// isDefinitionShard reports whether a shard gets the larger quota.
func isDefinitionShard(shardID, title string) bool {
	for _, s := range []string{strings.ToLower(shardID), strings.ToLower(title)} {
		if strings.Contains(s, "definisi") || strings.Contains(s, "ketentuan") {
			return true
		}
	}
	return false
}

// sortCandidates orders by pre-score descending, segment id ascending. The
// sort is stable so equal segments keep input order too.
func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].PreScore != cands[j].PreScore {
			return cands[i].PreScore > cands[j].PreScore
		}
		return cands[i].Segment.SegmentID < cands[j].Segment.SegmentID
	})
}

// Gate selects up to k candidate segments across shards. A zero k derives
// the cap from the corpus size: min(2000, ceil(0.015 * n)). Each shard
// contributes its quota of top-scored segments first; any remaining room is
// filled globally by pre-score.
func Gate(segments []types.Segment, shards []types.Shard, k, quotaPerShard int) []Candidate {
	if len(segments) == 0 {
		return nil
	}
	if quotaPerShard <= 0 {
		quotaPerShard = defaultQuotaPerShard
	}
	if k <= 0 {
		k = int(math.Ceil(candidateFraction * float64(len(segments))))
		if k > maxGlobalCandidates {
			k = maxGlobalCandidates
		}
		if k < 1 {
			k = 1
		}
	}

	// Map segment id -> shard; unassigned segments fall back to their
	// top-level header, or ROOT.
	shardOf := make(map[string]*types.Shard)
	for i := range shards {
		for _, sid := range shards[i].SegmentIDs {
			shardOf[sid] = &shards[i]
		}
	}

	all := make([]Candidate, 0, len(segments))
	byShard := make(map[string][]Candidate)
	titles := make(map[string]string)
	for i := range segments {
		seg := &segments[i]
		shardID := "ROOT"
		title := ""
		if sh, ok := shardOf[seg.SegmentID]; ok {
			shardID = sh.ShardID
			title = sh.Title
		} else if len(seg.HeaderPath) > 0 {
			shardID = seg.HeaderPath[0]
			title = seg.HeaderPath[0]
		}
		c := Candidate{Segment: seg, ShardID: shardID, PreScore: PreScore(seg)}
		all = append(all, c)
		byShard[shardID] = append(byShard[shardID], c)
		titles[shardID] = title
	}

	selected := make([]Candidate, 0, k)
	selectedIDs := make(map[string]bool)

	// Deterministic shard iteration order.
	shardIDs := make([]string, 0, len(byShard))
	for id := range byShard {
		shardIDs = append(shardIDs, id)
	}
	sort.Strings(shardIDs)

	for _, shardID := range shardIDs {
		cands := byShard[shardID]
		sortCandidates(cands)
		cap := quotaPerShard
		if isDefinitionShard(shardID, titles[shardID]) {
			cap = definitionShardQuota
		}
		for i := 0; i < len(cands) && i < cap; i++ {
			selected = append(selected, cands[i])
			selectedIDs[cands[i].Segment.SegmentID] = true
		}
	}

	// Global fill by pre-score for the remainder.
	if len(selected) < k {
		sortCandidates(all)
		for _, c := range all {
			if len(selected) >= k {
				break
			}
			if selectedIDs[c.Segment.SegmentID] {
				continue
			}
			selected = append(selected, c)
			selectedIDs[c.Segment.SegmentID] = true
		}
	}

	sortCandidates(selected)
	if len(selected) > k {
		selected = selected[:k]
	}
	return selected
}

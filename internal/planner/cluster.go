package planner

import (
	"github.com/adiwibowo/perkaya/internal/types"
)

// DefaultClusterThreshold is the cosine similarity above which an
// occurrence joins an existing cluster.
const DefaultClusterThreshold = 0.82

// Occurrence is one skim label joined back to its segment metadata.
type Occurrence struct {
	Label      string
	Normalized string
	Confidence float64
	Segment    *types.Segment
}

// cluster accumulates occurrences around a running-mean centroid.
type cluster struct {
	centroid    []float64
	occurrences []Occurrence
}

// add folds an occurrence's vector into the centroid as a running mean,
// re-normalized.
func (c *cluster) add(occ Occurrence, vec []float64) {
	n := float64(len(c.occurrences))
	for i := range c.centroid {
		c.centroid[i] = (c.centroid[i]*n + vec[i]) / (n + 1)
	}
	l2Normalize(c.centroid)
	c.occurrences = append(c.occurrences, occ)
}

// Cluster groups occurrences by single-pass greedy assignment: each
// occurrence joins the best-matching centroid at or above threshold, or
// starts a new cluster. Order-dependent by design; the caller feeds
// occurrences in stable document order.
func Cluster(occurrences []Occurrence, threshold float64) [][]Occurrence {
	if threshold <= 0 {
		threshold = DefaultClusterThreshold
	}
	var clusters []*cluster
	for _, occ := range occurrences {
		vec := HashEmbed(occ.Normalized)
		bestIdx := -1
		bestSim := 0.0
		for i, cl := range clusters {
			sim := Cosine(cl.centroid, vec)
			if sim > bestSim {
				bestSim = sim
				bestIdx = i
			}
		}
		if bestIdx >= 0 && bestSim >= threshold {
			clusters[bestIdx].add(occ, vec)
			continue
		}
		centroid := make([]float64, len(vec))
		copy(centroid, vec)
		clusters = append(clusters, &cluster{
			centroid:    centroid,
			occurrences: []Occurrence{occ},
		})
	}

	out := make([][]Occurrence, len(clusters))
	for i, cl := range clusters {
		out[i] = cl.occurrences
	}
	return out
}

// ScoreCluster computes frequency + 0.7*mean_header_weight +
// 0.3*mean_numeric_ratio over the cluster's occurrences.
func ScoreCluster(occs []Occurrence) float64 {
	if len(occs) == 0 {
		return 0
	}
	var hw, nr float64
	for _, occ := range occs {
		hw += headerWeight(occ.Segment.HeaderPath)
		nr += occ.Segment.NumericRatio
	}
	n := float64(len(occs))
	return n + 0.7*(hw/n) + 0.3*(nr/n)
}

// DisplayLabel picks the occurrence with the highest (confidence, label
// length) pair as the cluster's display form.
func DisplayLabel(occs []Occurrence) string {
	best := occs[0]
	for _, occ := range occs[1:] {
		if occ.Confidence > best.Confidence ||
			(occ.Confidence == best.Confidence && len(occ.Label) > len(best.Label)) {
			best = occ
		}
	}
	return best.Label
}

package planner

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// NormalizeLabel lowercases a label, collapses every non-word run to a
// single space and trims. "Nilai-Tunai" and "nilai  tunai" normalize to the
// same key.
func NormalizeLabel(label string) string {
	var sb strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			sb.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// embedDim is the hash-embedding dimensionality.
const embedDim = 256

// HashEmbed maps a normalized label to a fixed-dimension vector by
// token-additive hashing, L2-normalized. Identical normalized labels always
// produce identical vectors.
func HashEmbed(normalized string) []float64 {
	vec := make([]float64, embedDim)
	for _, token := range strings.Fields(normalized) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		idx := int(sum % embedDim)
		// Second hash bit decides the sign, which keeps unrelated tokens
		// from always adding constructively.
		if (sum>>16)&1 == 1 {
			vec[idx] += 1
		} else {
			vec[idx] -= 1
		}
	}
	l2Normalize(vec)
	return vec
}

func l2Normalize(vec []float64) {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
}

// Cosine returns the cosine similarity of two equal-length vectors.
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

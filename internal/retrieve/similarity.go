package retrieve

import (
	"fmt"
	"math"
)

// CosineSimilarity scores how close two embedding vectors point, in [-1, 1].
// Vectors indexed under a different embedding model can surface with a
// different dimension; that is reported as an error so the caller can skip
// the stale record instead of scoring garbage.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	// A zero vector has no direction to compare against.
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return float32(dot / math.Sqrt(normA*normB)), nil
}

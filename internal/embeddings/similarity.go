package embeddings

import (
	"fmt"
	"math"
)

// CosineSimilarity returns dot(a, b) / (|a| * |b|), clamped to [-1, 1].
//
// Vectors of different length, or empty vectors, return ErrDimensionMismatch.
// A zero-magnitude vector returns ErrDegenerateVector rather than NaN.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, ErrDegenerateVector
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim)), nil
}

// Package vectormath provides small float32 vector primitives (L2
// normalization, dot products) shared by the scorer and the embedding
// adapters.
package vectormath

import (
	"math"
)

// NormalizeL2 scales vector to unit length in place. Accumulation is done in
// float64 so near-tied magnitudes stay stable. A zero vector is left
// unchanged rather than dividing by zero.
func NormalizeL2(vector []float32) {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}

// Dot returns the inner product of a and b accumulated in float64.
// Panics if the lengths differ; callers validate dimensions at the store
// boundary.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		panic("vectormath: dot of vectors with different lengths")
	}

	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector is all zeros.
func CosineSimilarity(a, b []float32) float64 {
	dot := Dot(a, b)

	na := math.Sqrt(Dot(a, a))
	nb := math.Sqrt(Dot(b, b))

	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (na * nb)
}

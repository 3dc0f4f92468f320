// Package vector provides exact per-space vector storage and similarity helpers.
package vector

import "math"

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns the cosine of the angle between a and b in [-1, 1].
// Mismatched lengths and zero vectors have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 || len(a) != len(b) {
		return 0
	}
	cos := InnerProduct(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, cos))
}

// UnitSimilarity maps cosine similarity into [0, 1] as (cos+1)/2.
func UnitSimilarity(a, b []float32) float64 {
	return (CosineSimilarity(a, b) + 1) / 2
}

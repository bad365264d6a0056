package services

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// cosineSimilarity computes the cosine of two equal-length vectors,
// returning 0 when either has zero norm or lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	af := toFloat64(a)
	bf := toFloat64(b)
	na := floats.Norm(af, 2)
	nb := floats.Norm(bf, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(af, bf) / (na * nb)
}

// blendVectors moves current toward (alpha > 0) or away from (alpha < 0)
// target with an exponential moving average, then re-normalizes to unit
// length. Returns a new slice; inputs are not modified.
func blendVectors(current, target []float32, alpha float64) []float32 {
	if len(current) != len(target) {
		return current
	}
	blended := make([]float64, len(current))
	for i := range current {
		blended[i] = (1-math.Abs(alpha))*float64(current[i]) + alpha*float64(target[i])
	}
	if n := floats.Norm(blended, 2); n > 0 {
		floats.Scale(1/n, blended)
	}
	out := make([]float32, len(blended))
	for i, v := range blended {
		out[i] = float32(v)
	}
	return out
}

// vectorDelta is the L2 distance between two vectors, used to quantify
// learning impact. Unit vectors bound it to [0, 2].
func vectorDelta(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

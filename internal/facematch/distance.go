package facematch

import "math"

// EuclideanDistance computes the Euclidean (L2) distance between two embeddings.
// Returns +Inf for vectors of different or zero length, which never passes a tolerance check.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Confidence converts a distance into the displayed match percentage.
// It is (1 - distance) * 100 and is deliberately not clamped, so degenerate
// distances yield values below 0 or above 100.
func Confidence(distance float64) float64 {
	return (1 - distance) * 100
}

package biometric

import (
	"math"

	"github.com/andresmejia3/veriface/internal/types"
)

// scorable reports whether two descriptors can be scored against each other.
// Mismatched or empty inputs score as zero similarity, never a panic.
func scorable(a, b types.Descriptor) bool {
	return len(a) > 0 && len(a) == len(b)
}

// Stats returns the element-wise mean and population standard deviation of d.
func Stats(d types.Descriptor) (mean, stdDev float64) {
	if len(d) == 0 {
		return 0, 0
	}
	for _, v := range d {
		mean += float64(v)
	}
	mean /= float64(len(d))

	var variance float64
	for _, v := range d {
		diff := float64(v) - mean
		variance += diff * diff
	}
	return mean, math.Sqrt(variance / float64(len(d)))
}

// ZScore returns (d - mean) / stddev. A constant descriptor is returned widened but unchanged.
func ZScore(d types.Descriptor) []float64 {
	out := d.Float64()
	mean, sd := Stats(d)
	if sd == 0 {
		return out
	}
	for i := range out {
		out[i] = (out[i] - mean) / sd
	}
	return out
}

// Normalize scales d to unit L2 length. Zero vectors are returned widened but unchanged.
func Normalize(d types.Descriptor) []float64 {
	out := d.Float64()
	var norm float64
	for _, v := range out {
		norm += v * v
	}
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] /= norm
	}
	return out
}

// checkShape rejects empty, wrongly sized, or non-finite descriptors.
// dim <= 0 accepts any non-empty length.
func checkShape(d types.Descriptor, dim int) *Error {
	if len(d) == 0 {
		return InvalidInput("descriptor is empty")
	}
	if dim > 0 && len(d) != dim {
		return InvalidInput("descriptor has %d elements, expected %d", len(d), dim).With("length", len(d))
	}
	for i, v := range d {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return InvalidInput("descriptor element %d is not finite", i)
		}
	}
	return nil
}

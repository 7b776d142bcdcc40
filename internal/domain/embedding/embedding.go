// Package embedding holds the face vector type and the arithmetic the matcher
// and registry builder need. Vectors are produced by an external model; this
// package never mutates a vector it is handed.
package embedding

import (
	"fmt"
	"math"
)

// Epsilon guards normalization of near-zero vectors.
const Epsilon = 1e-10

// Vector is a fixed-length face embedding.
type Vector []float32

// Dim returns the vector length.
func (v Vector) Dim() int { return len(v) }

// Norm returns the L2 norm.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. The divisor is norm+Epsilon, so a
// zero vector stays zero instead of producing NaNs.
func Normalize(v Vector) Vector {
	n := v.Norm() + Epsilon
	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Dot returns the dot product of a and b. For unit vectors this is the cosine
// similarity.
func Dot(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}

// Centroid returns the unit-normalized mean of samples. Every sample is
// normalized first so that one bright, high-norm capture cannot dominate.
func Centroid(samples []Vector) (Vector, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	dim := len(samples[0])
	if dim == 0 {
		return nil, ErrEmptyVector
	}
	mean := make([]float64, dim)
	for _, s := range samples {
		if len(s) != dim {
			return nil, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(s), dim)
		}
		for i, x := range Normalize(s) {
			mean[i] += float64(x)
		}
	}
	out := make(Vector, dim)
	for i := range mean {
		out[i] = float32(mean[i] / float64(len(samples)))
	}
	return Normalize(out), nil
}

// IsUnit reports whether v has norm 1 within tol.
func IsUnit(v Vector, tol float64) bool {
	return math.Abs(v.Norm()-1) <= tol
}

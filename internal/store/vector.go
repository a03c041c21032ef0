// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package store

import "math"

// Normalize returns a unit-length copy of v. A zero vector is returned
// unchanged, since it has no direction to preserve.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Cosine returns the cosine similarity of two unit-normalized vectors,
// which reduces to their dot product. Vectors are only comparable when
// produced by the same embedding model version.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

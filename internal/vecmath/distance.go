// Package vecmath holds the numeric kernels shared by the index builder
// and the query engine: squared-distance computation and centroid training.
package vecmath

import "github.com/therealutkarshpriyadarshi/ivfgrid/pkg/matrix"

// L2Squared computes squared Euclidean distance between two vectors of the
// same element type. The accumulation is plain float32 in index order; no
// compensation is applied, so the result is deterministic for a fixed
// iteration order.
func L2Squared[T matrix.Scalar](a, b []T) float32 {
	var sum float32
	for i := range a {
		d := float32(a[i]) - float32(b[i])
		sum += d * d
	}
	return sum
}

// L2SquaredCentroid computes squared Euclidean distance between a float32
// centroid and a stored vector. Centroids keep their own element type
// (float32) even when the corpus is quantized, e.g. uint8 vectors.
func L2SquaredCentroid[T matrix.Scalar](c []float32, v []T) float32 {
	var sum float32
	for i := range c {
		d := c[i] - float32(v[i])
		sum += d * d
	}
	return sum
}

// NearestCentroid returns the index of the centroid column closest to v,
// along with its squared distance. Ties resolve to the smaller centroid
// index because the scan keeps the first minimum.
func NearestCentroid[T matrix.Scalar](centroids *matrix.Matrix[float32], v []T) (int, float32) {
	best := 0
	bestDist := L2SquaredCentroid(centroids.Col(0), v)
	for c := 1; c < centroids.Cols(); c++ {
		if d := L2SquaredCentroid(centroids.Col(c), v); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best, bestDist
}

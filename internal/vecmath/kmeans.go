package vecmath

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/matrix"
)

// KMeansConfig controls centroid training.
type KMeansConfig struct {
	NumIterations int   // Max Lloyd iterations (default: 25)
	RandomSeed    int64 // Seed for reproducible training
	Tolerance     float32
}

// DefaultKMeansConfig returns the training defaults.
func DefaultKMeansConfig() KMeansConfig {
	return KMeansConfig{
		NumIterations: 25,
		RandomSeed:    1,
		Tolerance:     1e-6,
	}
}

// KMeansPlusPlus trains k centroids over the columns of db using k-means++
// seeding followed by Lloyd iterations. Returns a D x k float32 matrix.
//
// Training is a build-time concern; the query engine only ever reads the
// resulting centroid matrix.
func KMeansPlusPlus[T matrix.Scalar](db *matrix.Matrix[T], k int, cfg KMeansConfig) (*matrix.Matrix[float32], error) {
	n := db.Cols()
	dim := db.Rows()
	if k <= 0 {
		return nil, fmt.Errorf("kmeans: k must be positive, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("kmeans: need at least %d vectors for %d centroids, got %d", k, k, n)
	}
	if cfg.NumIterations <= 0 {
		cfg.NumIterations = 25
	}

	r := rand.New(rand.NewSource(cfg.RandomSeed))
	centroids := matrix.New[float32](dim, k)

	// Seed the first centroid uniformly at random.
	first := r.Intn(n)
	copyColAsFloat(centroids, 0, db, first)

	// Remaining seeds: sample proportionally to squared distance from the
	// nearest already-chosen centroid.
	dists := make([]float32, n)
	for c := 1; c < k; c++ {
		var total float32
		for i := 0; i < n; i++ {
			minDist := float32(math.MaxFloat32)
			for j := 0; j < c; j++ {
				if d := L2SquaredCentroid(centroids.Col(j), db.Col(i)); d < minDist {
					minDist = d
				}
			}
			dists[i] = minDist
			total += minDist
		}

		if total > 0 {
			target := r.Float32() * total
			var cum float32
			picked := n - 1
			for i, d := range dists {
				cum += d
				if cum >= target {
					picked = i
					break
				}
			}
			copyColAsFloat(centroids, c, db, picked)
		} else {
			copyColAsFloat(centroids, c, db, r.Intn(n))
		}
	}

	// Lloyd iterations.
	assign := make([]int, n)
	sums := matrix.New[float32](dim, k)
	counts := make([]int, k)
	for iter := 0; iter < cfg.NumIterations; iter++ {
		for i := 0; i < n; i++ {
			assign[i], _ = NearestCentroid(centroids, db.Col(i))
		}

		clear(sums.Data())
		clear(counts)
		for i := 0; i < n; i++ {
			c := assign[i]
			counts[c]++
			s := sums.Col(c)
			v := db.Col(i)
			for d := 0; d < dim; d++ {
				s[d] += float32(v[d])
			}
		}

		converged := true
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // empty cluster keeps its centroid
			}
			s := sums.Col(c)
			old := centroids.Col(c)
			var shift float32
			for d := 0; d < dim; d++ {
				nv := s[d] / float32(counts[c])
				diff := nv - old[d]
				shift += diff * diff
				old[d] = nv
			}
			if shift > cfg.Tolerance {
				converged = false
			}
		}
		if converged {
			break
		}
	}

	return centroids, nil
}

func copyColAsFloat[T matrix.Scalar](dst *matrix.Matrix[float32], dstCol int, src *matrix.Matrix[T], srcCol int) {
	d := dst.Col(dstCol)
	s := src.Col(srcCol)
	for i := range d {
		d[i] = float32(s[i])
	}
}

package ivf

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/therealutkarshpriyadarshi/ivfgrid/internal/vecmath"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/matrix"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/topk"
)

// Probe maps each query to its nprobe nearest centroids and folds the
// per-query selections into an ActiveSet. Centroid distances tie-break to
// the smaller centroid id.
//
// Queries are independent, so they are sharded across nthreads workers
// (0 means the host's CPU count); the reduction into the ActiveSet is
// single-threaded and cheap.
func Probe[T matrix.Scalar](centroids *matrix.Matrix[float32], queries *matrix.Matrix[T], nprobe, nthreads int) (ActiveSet, error) {
	var active ActiveSet

	numParts := 0
	if centroids != nil {
		numParts = centroids.Cols()
	}
	if numParts == 0 {
		return active, fmt.Errorf("probe: empty centroids: %w", ErrInvalidArgument)
	}
	numQueries := 0
	if queries != nil {
		numQueries = queries.Cols()
	}
	if numQueries == 0 {
		return active, fmt.Errorf("probe: empty query batch: %w", ErrInvalidArgument)
	}
	if queries.Rows() != centroids.Rows() {
		return active, fmt.Errorf("probe: query dimension %d does not match centroid dimension %d: %w",
			queries.Rows(), centroids.Rows(), ErrInvalidArgument)
	}
	if nprobe < 1 || nprobe > numParts {
		return active, fmt.Errorf("probe: nprobe %d out of range [1,%d]: %w", nprobe, numParts, ErrInvalidArgument)
	}
	if nthreads <= 0 {
		nthreads = runtime.NumCPU()
	}
	if nthreads > numQueries {
		nthreads = numQueries
	}

	// selected[q] holds query q's nprobe partition ids, ascending distance.
	selected := make([][]uint64, numQueries)

	queriesPerWorker := (numQueries + nthreads - 1) / nthreads
	var wg sync.WaitGroup
	for w := 0; w < nthreads; w++ {
		first := min(w*queriesPerWorker, numQueries)
		last := min((w+1)*queriesPerWorker, numQueries)
		if first == last {
			continue
		}
		wg.Add(1)
		go func(first, last int) {
			defer wg.Done()
			for q := first; q < last; q++ {
				h, _ := topk.New(nprobe)
				qv := queries.Col(q)
				for c := 0; c < numParts; c++ {
					h.Insert(vecmath.L2SquaredCentroid(centroids.Col(c), qv), uint64(c))
				}
				pairs := h.DrainSorted()
				ids := make([]uint64, len(pairs))
				for i, p := range pairs {
					ids[i] = p.ID
				}
				selected[q] = ids
			}
		}(first, last)
	}
	wg.Wait()

	// Reduce: dedup into ascending partition order, then route queries.
	hit := make([]bool, numParts)
	for _, ids := range selected {
		for _, p := range ids {
			hit[p] = true
		}
	}
	rank := make([]int, numParts)
	for p := 0; p < numParts; p++ {
		if hit[p] {
			rank[p] = len(active.Partitions)
			active.Partitions = append(active.Partitions, uint64(p))
		}
	}
	active.Queries = make([][]int32, len(active.Partitions))
	for q := 0; q < numQueries; q++ {
		for _, p := range selected[q] {
			r := rank[p]
			active.Queries[r] = append(active.Queries[r], int32(q))
		}
	}
	return active, nil
}

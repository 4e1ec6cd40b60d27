// Package ivf implements a distributed inverted-file (IVF) approximate
// nearest-neighbor engine over a partitioned columnar vector store.
//
// The index is built once: every vector is assigned to its nearest
// centroid and the corpus is shuffled into partition-contiguous layout
// (BuildIndex). Queries then probe their nprobe nearest centroids, the
// touched partitions are sharded across compute nodes, and each node runs
// a work-partitioned parallel scan feeding per-query bounded top-k heaps
// (Index.Search).
//
// Distances are squared Euclidean computed in float32. Equal distances
// rank by smaller id, which keeps every stage deterministic regardless of
// worker count, node count or merge order.
package ivf

import (
	"errors"
	"math"
)

// Sentinel fills top-k output slots for which fewer than k candidates were
// scanned.
const Sentinel = math.MaxUint64

var (
	// ErrInvalidArgument reports a malformed request: zero k or nprobe,
	// nprobe beyond the partition count, empty queries or centroids, a
	// dimension mismatch, or an index array of the wrong length.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInconsistency reports a failed post-shuffle self-check in the
	// builder. Nothing is persisted when it is returned.
	ErrInconsistency = errors.New("index inconsistency")
)

// ActiveSet is the probe result: the distinct partitions any query in the
// batch wants to scan, and the routing of queries to those partitions.
type ActiveSet struct {
	// Partitions holds the global partition ids, ascending.
	Partitions []uint64

	// Queries[i] lists the query indices (ascending) that selected
	// Partitions[i] among their top-nprobe centroids.
	Queries [][]int32
}

// SizesToIndices turns per-partition sizes into a length-(n+1) offset
// array with indices[0] = 0.
func SizesToIndices(sizes []uint64) []uint64 {
	indices := make([]uint64, len(sizes)+1)
	for i, s := range sizes {
		indices[i+1] = indices[i] + s
	}
	return indices
}

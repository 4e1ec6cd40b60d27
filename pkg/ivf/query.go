package ivf

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/ivfgrid/internal/vecmath"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/matrix"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/observability"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/store"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/topk"
)

// Index is a queryable IVF index: centroids and the offset array in
// memory, shuffled vectors and ids reachable through the store.
type Index[T matrix.Scalar] struct {
	store     store.Store
	partsURI  string
	idURI     string
	centroids *matrix.Matrix[float32]
	indices   []uint64

	log     *observability.Logger
	metrics *observability.Metrics
	timers  *observability.Timers
}

// IndexConfig wires an Index. Logger, Metrics and Timers are optional;
// nil disables them.
type IndexConfig struct {
	Store     store.Store
	PartsURI  string
	IDURI     string
	Centroids *matrix.Matrix[float32]
	Indices   []uint64

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Timers  *observability.Timers
}

// NewIndex validates the configuration and returns the index.
func NewIndex[T matrix.Scalar](cfg IndexConfig) (*Index[T], error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("index: nil store: %w", ErrInvalidArgument)
	}
	if cfg.Centroids == nil || cfg.Centroids.Cols() == 0 {
		return nil, fmt.Errorf("index: empty centroids: %w", ErrInvalidArgument)
	}
	if len(cfg.Indices) != cfg.Centroids.Cols()+1 {
		return nil, fmt.Errorf("index: offset array has length %d, want %d: %w",
			len(cfg.Indices), cfg.Centroids.Cols()+1, ErrInvalidArgument)
	}
	return &Index[T]{
		store:     cfg.Store,
		partsURI:  cfg.PartsURI,
		idURI:     cfg.IDURI,
		centroids: cfg.Centroids,
		indices:   cfg.Indices,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		timers:    cfg.Timers,
	}, nil
}

// OpenIndex reads centroids and the offset array from the store and
// returns the index over them.
func OpenIndex[T matrix.Scalar](ctx context.Context, cfg IndexConfig, centroidsURI, indexURI string) (*Index[T], error) {
	centroids, err := store.ReadMatrix[float32](ctx, cfg.Store, centroidsURI)
	if err != nil {
		return nil, err
	}
	indices, err := store.ReadVector[uint64](ctx, cfg.Store, indexURI)
	if err != nil {
		return nil, err
	}
	cfg.Centroids = centroids
	cfg.Indices = indices
	return NewIndex[T](cfg)
}

// NumPartitions returns the partition count C.
func (ix *Index[T]) NumPartitions() int { return ix.centroids.Cols() }

// Dimension returns the vector dimension D.
func (ix *Index[T]) Dimension() int { return ix.centroids.Rows() }

// NumVectors returns the number of indexed vectors.
func (ix *Index[T]) NumVectors() uint64 {
	return ix.indices[len(ix.indices)-1] - ix.indices[0]
}

// SearchParams tunes one query batch.
type SearchParams struct {
	Nprobe     int // partitions probed per query, 1..C
	K          int // neighbors returned per query, >= 1
	Nthreads   int // workers per node; 0 means the host's CPU count
	NumNodes   int // simulated compute nodes; 0 means 1
	UpperBound int // per-load column budget; 0 (in-RAM) is the only supported value
	Nth        bool
}

// Search runs the batch and returns a k x Q column-major matrix of
// external ids: column j holds query j's neighbors in ascending distance,
// padded with Sentinel when fewer than k candidates were scanned.
//
// Active partitions are sharded across NumNodes simulated compute nodes in
// contiguous chunks; each node loads only its shard and scans it with
// Nthreads parallel workers. The output is independent of both NumNodes
// and Nthreads.
func (ix *Index[T]) Search(ctx context.Context, queries *matrix.Matrix[T], p SearchParams) (*matrix.Matrix[uint64], error) {
	start := time.Now()

	if p.K < 1 {
		ix.metrics.RecordSearchError("validate")
		return nil, fmt.Errorf("search: k must be at least 1: %w", ErrInvalidArgument)
	}
	if p.NumNodes == 0 {
		p.NumNodes = 1
	}
	if p.NumNodes < 0 {
		ix.metrics.RecordSearchError("validate")
		return nil, fmt.Errorf("search: num_nodes %d: %w", p.NumNodes, ErrInvalidArgument)
	}
	if p.UpperBound != 0 {
		ix.metrics.RecordSearchError("validate")
		return nil, fmt.Errorf("search: upper_bound %d: out-of-core execution is not supported: %w",
			p.UpperBound, ErrInvalidArgument)
	}

	stopProbe := ix.timers.Scope("probe")
	active, err := Probe(ix.centroids, queries, p.Nprobe, p.Nthreads)
	stopProbe()
	if err != nil {
		ix.metrics.RecordSearchError("probe")
		return nil, err
	}

	numQueries := queries.Cols()
	ix.log.Debug("probe complete", map[string]interface{}{
		"queries":           numQueries,
		"nprobe":            p.Nprobe,
		"active_partitions": len(active.Partitions),
	})

	heaps := make([]*topk.Heap, numQueries)
	for j := range heaps {
		heaps[j], _ = topk.New(p.K)
	}

	numParts := len(active.Partitions)
	partsPerNode := (numParts + p.NumNodes - 1) / p.NumNodes
	for node := 0; node < p.NumNodes; node++ {
		first := min(node*partsPerNode, numParts)
		last := min((node+1)*partsPerNode, numParts)
		if first == last {
			continue
		}

		nodeHeaps, err := ix.queryNode(ctx, queries, active, first, last, p.K, p.Nthreads)
		if err != nil {
			ix.metrics.RecordSearchError("scan")
			return nil, fmt.Errorf("search: node %d: %w", node, err)
		}
		for j := 0; j < numQueries; j++ {
			heaps[j].Merge(nodeHeaps[j])
		}
	}

	topK := matrix.New[uint64](p.K, numQueries)
	for j := 0; j < numQueries; j++ {
		col := topK.Col(j)
		pairs := heaps[j].DrainSorted()
		for i := range col {
			if i < len(pairs) {
				col[i] = pairs[i].ID
			} else {
				col[i] = Sentinel
			}
		}
	}

	ix.metrics.RecordSearch(numQueries, p.Nprobe, numParts, p.NumNodes, time.Since(start))
	return topK, nil
}

// queryNode is the per-node stage: load the node's partitions into one
// PartitionedMatrix, fan the partition range out over nthreads workers,
// and reduce the per-worker heap vectors.
func (ix *Index[T]) queryNode(
	ctx context.Context,
	queries *matrix.Matrix[T],
	active ActiveSet,
	firstPart, lastPart int,
	k, nthreads int,
) ([]*topk.Heap, error) {
	pm, err := NewPartitionedMatrix[T](
		ix.store, ix.partsURI, ix.indices, active.Partitions[firstPart:lastPart], firstPart, ix.idURI, 0)
	if err != nil {
		return nil, err
	}

	stopLoad := ix.timers.Scope("load")
	err = pm.Load(ctx)
	stopLoad()
	if err != nil {
		return nil, err
	}

	if nthreads <= 0 {
		nthreads = runtime.NumCPU()
	}

	defer ix.timers.Scope("scan")()

	numParts := pm.NumColParts()
	partsPerWorker := (numParts + nthreads - 1) / nthreads

	results := make([][]*topk.Heap, nthreads)
	errs := make([]error, nthreads)
	var wg sync.WaitGroup
	for w := 0; w < nthreads; w++ {
		first := min(w*partsPerWorker, numParts)
		last := min((w+1)*partsPerWorker, numParts)
		if first == last {
			continue
		}
		wg.Add(1)
		go func(w, first, last int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[w] = fmt.Errorf("worker %d panicked: %v", w, r)
				}
			}()
			results[w], errs[w] = applyQuery(queries, pm, active, k, first, last)
		}(w, first, last)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	numQueries := queries.Cols()
	merged := make([]*topk.Heap, numQueries)
	for j := range merged {
		merged[j], _ = topk.New(k)
	}
	scanned := 0
	for _, workerHeaps := range results {
		if workerHeaps == nil {
			continue
		}
		for j := 0; j < numQueries; j++ {
			merged[j].Merge(workerHeaps[j])
		}
	}
	localIdx := pm.LocalIndices()
	for i := 0; i < numParts; i++ {
		scanned += int(localIdx[i+1]-localIdx[i]) * len(active.Queries[pm.ColPartOffset()+i])
	}
	ix.metrics.RecordScanned(scanned)

	return merged, nil
}

// applyQuery scans the contiguous local partition range [firstPart,
// lastPart) of pm against the queries routed to each partition, returning
// one heap per query in the batch. Queries with no partition in the range
// come back with empty heaps, which merge as no-ops.
func applyQuery[T matrix.Scalar](
	queries *matrix.Matrix[T],
	pm *PartitionedMatrix[T],
	active ActiveSet,
	k int,
	firstPart, lastPart int,
) ([]*topk.Heap, error) {
	numQueries := queries.Cols()
	heaps := make([]*topk.Heap, numQueries)
	for j := range heaps {
		h, err := topk.New(k)
		if err != nil {
			return nil, err
		}
		heaps[j] = h
	}

	localIdx := pm.LocalIndices()
	ids := pm.IDs()
	for p := firstPart; p < lastPart; p++ {
		start, stop := int(localIdx[p]), int(localIdx[p+1])
		for _, q := range active.Queries[pm.ColPartOffset()+p] {
			qv := queries.Col(int(q))
			h := heaps[q]
			for col := start; col < stop; col++ {
				h.Insert(vecmath.L2Squared(qv, pm.Col(col)), ids[col])
			}
		}
	}
	return heaps, nil
}

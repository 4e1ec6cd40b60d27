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
)

// BuildConfig parameterizes an index build.
type BuildConfig struct {
	CentroidsURI string
	PartsURI     string // shuffled vectors; empty skips the write
	IndexURI     string // offset array; empty skips the write
	IDURI        string // shuffled external ids; empty skips the write

	// StartPos biases shuffled ids and the offset array, and offsets the
	// writes of the parts and id arrays. It enables streaming builds over
	// disjoint row ranges of a larger corpus; coordination between such
	// writers is external.
	StartPos int
	EndPos   int // BuildIndexFromURI: end of the source column range; 0 means all

	Nthreads    int    // assignment workers; 0 means the host's CPU count
	Create      bool   // create the output arrays before writing
	Compression string // parts array compression ("" or "lz4", local store only)

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Timers  *observability.Timers
}

// BuildIndex assigns every column of db to its nearest centroid, shuffles
// the corpus into partition-contiguous layout with a stable order, and
// persists the three index artifacts: shuffled vectors, the offset array
// and the shuffled external ids.
func BuildIndex[T matrix.Scalar](ctx context.Context, s store.Store, db *matrix.Matrix[T], cfg BuildConfig) error {
	start := time.Now()

	if db == nil || db.Cols() == 0 {
		return fmt.Errorf("build: empty source matrix: %w", ErrInvalidArgument)
	}

	centroids, err := store.ReadMatrix[float32](ctx, s, cfg.CentroidsURI)
	if err != nil {
		return fmt.Errorf("build: load centroids: %w", err)
	}
	if centroids.Cols() == 0 {
		return fmt.Errorf("build: empty centroids: %w", ErrInvalidArgument)
	}
	if db.Rows() != centroids.Rows() {
		return fmt.Errorf("build: vector dimension %d does not match centroid dimension %d: %w",
			db.Rows(), centroids.Rows(), ErrInvalidArgument)
	}

	parts := assignPartitions(db, centroids, cfg.Nthreads, cfg.Timers)

	defer cfg.Timers.Scope("shuffle")()

	numParts := centroids.Cols()
	degrees := make([]uint64, numParts)
	for _, c := range parts {
		degrees[c]++
	}
	indices := SizesToIndices(degrees)

	check := make([]uint64, len(indices))
	copy(check, indices)

	// Stable single-pass shuffle: indices doubles as the write cursor per
	// bin, then gets restored to start-of-bin form by a shift.
	numVectors := db.Cols()
	shuffled := matrix.New[T](db.Rows(), numVectors)
	shuffledIDs := make([]uint64, numVectors)
	for i := 0; i < numVectors; i++ {
		bin := parts[i]
		at := indices[bin]
		shuffledIDs[at] = uint64(i + cfg.StartPos)
		shuffled.CopyCol(int(at), db, i)
		indices[bin]++
	}

	copy(indices[1:], indices[:numParts])
	indices[0] = 0

	for i := range indices {
		if indices[i] != check[i] {
			return fmt.Errorf("build: cursor position %d is %d after shuffle, want %d: %w",
				i, indices[i], check[i], ErrInconsistency)
		}
	}

	for i := range indices {
		indices[i] += uint64(cfg.StartPos)
	}

	cfg.Logger.Debug("shuffle complete", map[string]interface{}{
		"vectors":    numVectors,
		"partitions": numParts,
		"start_pos":  cfg.StartPos,
	})

	stopWrite := cfg.Timers.Scope("write")
	err = persistArtifacts(ctx, s, shuffled, indices, shuffledIDs, cfg)
	stopWrite()
	if err != nil {
		return err
	}

	cfg.Metrics.RecordBuild(numVectors, time.Since(start))
	return nil
}

// BuildIndexFromURI loads columns [StartPos, EndPos) of the source array
// and builds the index over them.
func BuildIndexFromURI[T matrix.Scalar](ctx context.Context, s store.Store, dbURI string, cfg BuildConfig) error {
	schema, err := s.DescribeMatrix(ctx, dbURI)
	if err != nil {
		return fmt.Errorf("build: describe %s: %w", dbURI, err)
	}
	endPos := cfg.EndPos
	if endPos == 0 {
		endPos = schema.Cols
	}
	db, err := store.ReadMatrixCols[T](ctx, s, dbURI, cfg.StartPos, endPos)
	if err != nil {
		return fmt.Errorf("build: load %s: %w", dbURI, err)
	}
	return BuildIndex(ctx, s, db, cfg)
}

// assignPartitions computes each column's nearest centroid with nthreads
// workers. Ties go to the smaller centroid id.
func assignPartitions[T matrix.Scalar](db *matrix.Matrix[T], centroids *matrix.Matrix[float32], nthreads int, timers *observability.Timers) []uint64 {
	defer timers.Scope("assign")()

	n := db.Cols()
	parts := make([]uint64, n)
	if nthreads <= 0 {
		nthreads = runtime.NumCPU()
	}
	if nthreads > n {
		nthreads = n
	}

	colsPerWorker := (n + nthreads - 1) / nthreads
	var wg sync.WaitGroup
	for w := 0; w < nthreads; w++ {
		first := min(w*colsPerWorker, n)
		last := min((w+1)*colsPerWorker, n)
		if first == last {
			continue
		}
		wg.Add(1)
		go func(first, last int) {
			defer wg.Done()
			for i := first; i < last; i++ {
				c, _ := vecmath.NearestCentroid(centroids, db.Col(i))
				parts[i] = uint64(c)
			}
		}(first, last)
	}
	wg.Wait()
	return parts
}

func persistArtifacts[T matrix.Scalar](
	ctx context.Context,
	s store.Store,
	shuffled *matrix.Matrix[T],
	indices []uint64,
	shuffledIDs []uint64,
	cfg BuildConfig,
) error {
	if cfg.PartsURI != "" {
		if err := store.WriteMatrix(ctx, s, cfg.PartsURI, shuffled, cfg.StartPos, cfg.Create, cfg.Compression); err != nil {
			return fmt.Errorf("build: persist parts: %w", err)
		}
	}
	if cfg.IndexURI != "" {
		if err := store.WriteVector(ctx, s, cfg.IndexURI, indices, 0, cfg.Create); err != nil {
			return fmt.Errorf("build: persist offsets: %w", err)
		}
	}
	if cfg.IDURI != "" {
		if err := store.WriteVector(ctx, s, cfg.IDURI, shuffledIDs, cfg.StartPos, cfg.Create); err != nil {
			return fmt.Errorf("build: persist ids: %w", err)
		}
	}
	return nil
}

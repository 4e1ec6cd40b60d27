package ivf

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/matrix"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/store"
)

// PartitionedMatrix is an in-memory view of a contiguous subset of the
// shuffled column store: the columns of a node's active partitions, packed
// contiguously in active-partition order, together with their external ids.
type PartitionedMatrix[T matrix.Scalar] struct {
	store    store.Store
	partsURI string
	idURI    string

	indices       []uint64 // full C+1 offset array, absolute positions
	parts         []uint64 // this view's active partitions, global ids
	colPartOffset int      // rank of parts[0] in the batch's active list

	data     *matrix.Matrix[T]
	ids      []uint64
	localIdx []uint64 // len(parts)+1 offsets of each partition in data
	loaded   bool
}

// NewPartitionedMatrix prepares a view over the given active partitions.
// upperBound 0 means the whole view is loaded into RAM in one pass; any
// other value is the declared out-of-core extension, which this engine
// does not implement.
func NewPartitionedMatrix[T matrix.Scalar](
	s store.Store,
	partsURI string,
	indices []uint64,
	parts []uint64,
	colPartOffset int,
	idURI string,
	upperBound int,
) (*PartitionedMatrix[T], error) {
	if upperBound != 0 {
		return nil, fmt.Errorf("partitioned matrix: upper_bound %d: out-of-core loads are not supported: %w",
			upperBound, ErrInvalidArgument)
	}
	for _, p := range parts {
		if int(p)+1 >= len(indices) {
			return nil, fmt.Errorf("partitioned matrix: partition %d outside index array of length %d: %w",
				p, len(indices), ErrInvalidArgument)
		}
	}

	localIdx := make([]uint64, len(parts)+1)
	for i, p := range parts {
		localIdx[i+1] = localIdx[i] + (indices[p+1] - indices[p])
	}

	return &PartitionedMatrix[T]{
		store:         s,
		partsURI:      partsURI,
		idURI:         idURI,
		indices:       indices,
		parts:         parts,
		colPartOffset: colPartOffset,
		localIdx:      localIdx,
	}, nil
}

// Load performs the ranged reads, copying only the columns of the active
// partitions into one contiguous slab. The load is all-or-nothing: on any
// store error the view stays unloaded.
func (pm *PartitionedMatrix[T]) Load(ctx context.Context) error {
	schema, err := pm.store.DescribeMatrix(ctx, pm.partsURI)
	if err != nil {
		return err
	}

	width := int(pm.localIdx[len(pm.parts)])
	data := matrix.New[T](schema.Rows, width)
	ids := make([]uint64, width)

	for i, p := range pm.parts {
		from, to := int(pm.indices[p]), int(pm.indices[p+1])
		if from == to {
			continue
		}
		chunk, err := store.ReadMatrixCols[T](ctx, pm.store, pm.partsURI, from, to)
		if err != nil {
			return err
		}
		rows := schema.Rows
		copy(data.Data()[int(pm.localIdx[i])*rows:int(pm.localIdx[i+1])*rows], chunk.Data())

		idChunk, err := store.ReadVectorRange[uint64](ctx, pm.store, pm.idURI, from, to)
		if err != nil {
			return err
		}
		copy(ids[pm.localIdx[i]:pm.localIdx[i+1]], idChunk)
	}

	pm.data = data
	pm.ids = ids
	pm.loaded = true
	return nil
}

// NumCols returns the number of loaded columns.
func (pm *PartitionedMatrix[T]) NumCols() int { return int(pm.localIdx[len(pm.parts)]) }

// NumColParts returns the number of partitions in the view.
func (pm *PartitionedMatrix[T]) NumColParts() int { return len(pm.parts) }

// ColOffset returns the global column position of the first loaded column.
func (pm *PartitionedMatrix[T]) ColOffset() uint64 {
	if len(pm.parts) == 0 {
		return 0
	}
	return pm.indices[pm.parts[0]]
}

// ColPartOffset returns the rank of the view's first partition within the
// query batch's active-partition list.
func (pm *PartitionedMatrix[T]) ColPartOffset() int { return pm.colPartOffset }

// IDs returns the external id of each loaded column.
func (pm *PartitionedMatrix[T]) IDs() []uint64 { return pm.ids }

// Col returns loaded column k.
func (pm *PartitionedMatrix[T]) Col(k int) []T { return pm.data.Col(k) }

// LocalIndices returns the offset of each loaded partition within the
// slab, length NumColParts()+1.
func (pm *PartitionedMatrix[T]) LocalIndices() []uint64 { return pm.localIdx }

// Loaded reports whether Load has completed.
func (pm *PartitionedMatrix[T]) Loaded() bool { return pm.loaded }

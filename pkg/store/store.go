// Package store provides the columnar array store backing the index: dense
// typed matrices and vectors with ranged reads and offset writes. Arrays
// are tiled in roughly ten partitions so backends can fetch and compress at
// tile granularity.
//
// Two backends are provided: a local filesystem store and an S3 store.
package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/matrix"
)

// DType names an element type of a stored array.
type DType string

const (
	Float32 DType = "float32"
	Float64 DType = "float64"
	Uint8   DType = "uint8"
	Int8    DType = "int8"
	Int32   DType = "int32"
	Uint64  DType = "uint64"
)

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float64, Uint64:
		return 8
	case Uint8, Int8:
		return 1
	}
	return 0
}

// DTypeOf maps a Go element type to its stored dtype.
func DTypeOf[T matrix.Scalar]() DType {
	var z T
	switch any(z).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case uint8:
		return Uint8
	case int8:
		return Int8
	case int32:
		return Int32
	case uint64:
		return Uint64
	}
	return ""
}

// MatrixSchema describes a dense rows x cols array with a single "values"
// attribute in column-major order.
type MatrixSchema struct {
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
	DType       DType  `json:"dtype"`
	RowTile     int    `json:"row_tile"`
	ColTile     int    `json:"col_tile"`
	Compression string `json:"compression,omitempty"` // "" or "lz4"

	// TileOffsets records the byte offset of each compressed column-tile
	// frame inside the values object. Maintained by the backend; empty for
	// uncompressed arrays.
	TileOffsets []int64 `json:"tile_offsets,omitempty"`
}

// VectorSchema describes a dense one-dimensional array.
type VectorSchema struct {
	Len   int   `json:"len"`
	DType DType `json:"dtype"`
	Tile  int   `json:"tile"`
}

// tileExtent splits size into ~numTileParts tiles, keeping the minimum
// extent at 2 (or 1 for degenerate arrays).
const numTileParts = 10

func tileExtent(size int) int {
	extent := (size + numTileParts - 1) / numTileParts
	min := 1
	if size >= 2 {
		min = 2
	}
	if extent < min {
		extent = min
	}
	return extent
}

// NewMatrixSchema fills in the default tiling for a rows x cols array.
func NewMatrixSchema(rows, cols int, dtype DType, compression string) MatrixSchema {
	return MatrixSchema{
		Rows:        rows,
		Cols:        cols,
		DType:       dtype,
		RowTile:     tileExtent(rows),
		ColTile:     tileExtent(cols),
		Compression: compression,
	}
}

// NewVectorSchema fills in the default tiling for a length-n array.
func NewVectorSchema(n int, dtype DType) VectorSchema {
	return VectorSchema{Len: n, DType: dtype, Tile: tileExtent(n)}
}

// Store is the backend contract. Data buffers are raw little-endian element
// bytes; matrix buffers are column-major. Written matrix buffers always
// hold full-height columns; reads may select a row window.
type Store interface {
	CreateMatrix(ctx context.Context, uri string, schema MatrixSchema) error
	CreateVector(ctx context.Context, uri string, schema VectorSchema) error
	DescribeMatrix(ctx context.Context, uri string) (MatrixSchema, error)
	DescribeVector(ctx context.Context, uri string) (VectorSchema, error)

	// ReadMatrixRange returns rows [rowFrom,rowTo) of columns
	// [colFrom,colTo), column-major.
	ReadMatrixRange(ctx context.Context, uri string, rowFrom, rowTo, colFrom, colTo int) ([]byte, error)

	// WriteMatrixCols writes full-height columns starting at colOffset.
	WriteMatrixCols(ctx context.Context, uri string, colOffset int, data []byte) error

	ReadVectorRange(ctx context.Context, uri string, from, to int) ([]byte, error)
	WriteVectorRange(ctx context.Context, uri string, offset int, data []byte) error
}

// ReadMatrix loads a whole matrix.
func ReadMatrix[T matrix.Scalar](ctx context.Context, s Store, uri string) (*matrix.Matrix[T], error) {
	schema, err := s.DescribeMatrix(ctx, uri)
	if err != nil {
		return nil, err
	}
	return ReadMatrixCols[T](ctx, s, uri, 0, schema.Cols)
}

// ReadMatrixCols loads full-height columns [colFrom,colTo). A colTo of 0
// stands for the array's column count.
func ReadMatrixCols[T matrix.Scalar](ctx context.Context, s Store, uri string, colFrom, colTo int) (*matrix.Matrix[T], error) {
	schema, err := s.DescribeMatrix(ctx, uri)
	if err != nil {
		return nil, err
	}
	if schema.DType != DTypeOf[T]() {
		return nil, fmt.Errorf("store: %s holds %s values, requested %s", uri, schema.DType, DTypeOf[T]())
	}
	if colTo == 0 {
		colTo = schema.Cols
	}
	if colFrom < 0 || colTo > schema.Cols || colFrom > colTo {
		return nil, fmt.Errorf("store: column range [%d,%d) out of bounds for %s (cols=%d)", colFrom, colTo, uri, schema.Cols)
	}
	raw, err := s.ReadMatrixRange(ctx, uri, 0, schema.Rows, colFrom, colTo)
	if err != nil {
		return nil, err
	}
	return matrix.FromData(schema.Rows, colTo-colFrom, fromBytes[T](raw))
}

// WriteMatrix writes m at column offset colOffset, creating the array first
// when create is set.
func WriteMatrix[T matrix.Scalar](ctx context.Context, s Store, uri string, m *matrix.Matrix[T], colOffset int, create bool, compression string) error {
	if create {
		schema := NewMatrixSchema(m.Rows(), colOffset+m.Cols(), DTypeOf[T](), compression)
		if err := s.CreateMatrix(ctx, uri, schema); err != nil {
			return err
		}
	}
	return s.WriteMatrixCols(ctx, uri, colOffset, toBytes(m.Data()))
}

// ReadVector loads a whole vector.
func ReadVector[T matrix.Scalar](ctx context.Context, s Store, uri string) ([]T, error) {
	schema, err := s.DescribeVector(ctx, uri)
	if err != nil {
		return nil, err
	}
	if schema.DType != DTypeOf[T]() {
		return nil, fmt.Errorf("store: %s holds %s values, requested %s", uri, schema.DType, DTypeOf[T]())
	}
	raw, err := s.ReadVectorRange(ctx, uri, 0, schema.Len)
	if err != nil {
		return nil, err
	}
	return fromBytes[T](raw), nil
}

// ReadVectorRange loads elements [from,to) of a vector.
func ReadVectorRange[T matrix.Scalar](ctx context.Context, s Store, uri string, from, to int) ([]T, error) {
	schema, err := s.DescribeVector(ctx, uri)
	if err != nil {
		return nil, err
	}
	if schema.DType != DTypeOf[T]() {
		return nil, fmt.Errorf("store: %s holds %s values, requested %s", uri, schema.DType, DTypeOf[T]())
	}
	if from < 0 || to > schema.Len || from > to {
		return nil, fmt.Errorf("store: range [%d,%d) out of bounds for %s (len=%d)", from, to, uri, schema.Len)
	}
	raw, err := s.ReadVectorRange(ctx, uri, from, to)
	if err != nil {
		return nil, err
	}
	return fromBytes[T](raw), nil
}

// WriteVector writes v at offset, creating the array first when create is set.
func WriteVector[T matrix.Scalar](ctx context.Context, s Store, uri string, v []T, offset int, create bool) error {
	if create {
		if err := s.CreateVector(ctx, uri, NewVectorSchema(offset+len(v), DTypeOf[T]())); err != nil {
			return err
		}
	}
	return s.WriteVectorRange(ctx, uri, offset, toBytes(v))
}

func toBytes[T matrix.Scalar](vals []T) []byte {
	size := DTypeOf[T]().Size()
	b := make([]byte, len(vals)*size)
	switch v := any(vals).(type) {
	case []float32:
		for i, x := range v {
			binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(x))
		}
	case []float64:
		for i, x := range v {
			binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(x))
		}
	case []uint8:
		copy(b, v)
	case []int8:
		for i, x := range v {
			b[i] = byte(x)
		}
	case []int32:
		for i, x := range v {
			binary.LittleEndian.PutUint32(b[i*4:], uint32(x))
		}
	case []uint64:
		for i, x := range v {
			binary.LittleEndian.PutUint64(b[i*8:], x)
		}
	}
	return b
}

func fromBytes[T matrix.Scalar](b []byte) []T {
	size := DTypeOf[T]().Size()
	vals := make([]T, len(b)/size)
	switch v := any(vals).(type) {
	case []float32:
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
	case []float64:
		for i := range v {
			v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
		}
	case []uint8:
		copy(v, b)
	case []int8:
		for i := range v {
			v[i] = int8(b[i])
		}
	case []int32:
		for i := range v {
			v[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
		}
	case []uint64:
		for i := range v {
			v[i] = binary.LittleEndian.Uint64(b[i*8:])
		}
	}
	return vals
}

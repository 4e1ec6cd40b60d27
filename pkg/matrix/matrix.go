package matrix

import "fmt"

// Scalar is the set of element types the engine stores and scans.
// Keep this to plain numeric types; distances are always computed in float32.
type Scalar interface {
	float32 | float64 | uint8 | int8 | int32 | uint64
}

// Matrix is a dense 2D buffer in column-major order: column j occupies
// data[j*rows : (j+1)*rows] and is contiguous in memory.
//
// For vector data the convention is rows = dimension, cols = number of
// vectors, so Col(j) is vector j.
type Matrix[T Scalar] struct {
	rows int
	cols int
	data []T
}

// New allocates a zeroed rows x cols matrix.
func New[T Scalar](rows, cols int) *Matrix[T] {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("matrix: negative shape %dx%d", rows, cols))
	}
	return &Matrix[T]{
		rows: rows,
		cols: cols,
		data: make([]T, rows*cols),
	}
}

// FromData wraps an existing column-major buffer. The buffer is not copied.
func FromData[T Scalar](rows, cols int, data []T) (*Matrix[T], error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("matrix: buffer length %d does not match shape %dx%d", len(data), rows, cols)
	}
	return &Matrix[T]{rows: rows, cols: cols, data: data}, nil
}

// FromColumns builds a rows x len(cols) matrix by copying each column.
// Every column must have length rows.
func FromColumns[T Scalar](cols [][]T) (*Matrix[T], error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("matrix: no columns")
	}
	rows := len(cols[0])
	m := New[T](rows, len(cols))
	for j, c := range cols {
		if len(c) != rows {
			return nil, fmt.Errorf("matrix: column %d has length %d, want %d", j, len(c), rows)
		}
		copy(m.Col(j), c)
	}
	return m, nil
}

// Rows returns the number of rows (the vector dimension).
func (m *Matrix[T]) Rows() int { return m.rows }

// Cols returns the number of columns (the number of vectors).
func (m *Matrix[T]) Cols() int { return m.cols }

// Data returns the underlying column-major buffer.
func (m *Matrix[T]) Data() []T { return m.data }

// Col returns column j as a slice view into the buffer.
func (m *Matrix[T]) Col(j int) []T {
	return m.data[j*m.rows : (j+1)*m.rows : (j+1)*m.rows]
}

// At returns the element at row i, column j.
func (m *Matrix[T]) At(i, j int) T { return m.data[j*m.rows+i] }

// Set stores v at row i, column j.
func (m *Matrix[T]) Set(i, j int, v T) { m.data[j*m.rows+i] = v }

// CopyCol copies column src of from into column dst of m.
// Both matrices must have the same number of rows.
func (m *Matrix[T]) CopyCol(dst int, from *Matrix[T], src int) {
	copy(m.Col(dst), from.Col(src))
}

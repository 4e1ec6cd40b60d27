package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
)

const (
	schemaFile = "schema.json"
	valuesFile = "values.bin"
)

// LocalStore keeps each array as a directory holding a JSON schema and a
// little-endian values file. Matrices may be lz4-compressed per column
// tile; ranged reads then decompress only the tiles that overlap the
// requested columns.
type LocalStore struct {
	root string
}

// NewLocalStore roots array URIs at dir. Absolute URIs bypass the root.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

func (s *LocalStore) path(uri string) string {
	if filepath.IsAbs(uri) {
		return uri
	}
	return filepath.Join(s.root, uri)
}

func (s *LocalStore) writeSchema(uri string, v any) error {
	dir := s.path(uri)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", uri, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode schema for %s: %w", uri, err)
	}
	if err := os.WriteFile(filepath.Join(dir, schemaFile), data, 0o644); err != nil {
		return fmt.Errorf("store: write schema for %s: %w", uri, err)
	}
	return nil
}

func (s *LocalStore) readSchema(uri string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.path(uri), schemaFile))
	if err != nil {
		return fmt.Errorf("store: open %s: %w", uri, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: decode schema for %s: %w", uri, err)
	}
	return nil
}

// CreateMatrix creates the array directory and, for uncompressed arrays,
// pre-sizes the values file so offset writes can land anywhere.
func (s *LocalStore) CreateMatrix(_ context.Context, uri string, schema MatrixSchema) error {
	if schema.Compression != "" && schema.Compression != "lz4" {
		return fmt.Errorf("store: unsupported compression %q for %s", schema.Compression, uri)
	}
	if err := s.writeSchema(uri, schema); err != nil {
		return err
	}
	if schema.Compression == "" {
		f, err := os.OpenFile(filepath.Join(s.path(uri), valuesFile), os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("store: create values for %s: %w", uri, err)
		}
		defer f.Close()
		if err := f.Truncate(int64(schema.Rows) * int64(schema.Cols) * int64(schema.DType.Size())); err != nil {
			return fmt.Errorf("store: size values for %s: %w", uri, err)
		}
	}
	return nil
}

func (s *LocalStore) CreateVector(_ context.Context, uri string, schema VectorSchema) error {
	if err := s.writeSchema(uri, schema); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.path(uri), valuesFile), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("store: create values for %s: %w", uri, err)
	}
	defer f.Close()
	if err := f.Truncate(int64(schema.Len) * int64(schema.DType.Size())); err != nil {
		return fmt.Errorf("store: size values for %s: %w", uri, err)
	}
	return nil
}

func (s *LocalStore) DescribeMatrix(_ context.Context, uri string) (MatrixSchema, error) {
	var schema MatrixSchema
	err := s.readSchema(uri, &schema)
	return schema, err
}

func (s *LocalStore) DescribeVector(_ context.Context, uri string) (VectorSchema, error) {
	var schema VectorSchema
	err := s.readSchema(uri, &schema)
	return schema, err
}

func (s *LocalStore) ReadMatrixRange(ctx context.Context, uri string, rowFrom, rowTo, colFrom, colTo int) ([]byte, error) {
	schema, err := s.DescribeMatrix(ctx, uri)
	if err != nil {
		return nil, err
	}
	if rowFrom < 0 || rowTo > schema.Rows || rowFrom > rowTo ||
		colFrom < 0 || colTo > schema.Cols || colFrom > colTo {
		return nil, fmt.Errorf("store: range rows[%d,%d) cols[%d,%d) out of bounds for %s (%dx%d)",
			rowFrom, rowTo, colFrom, colTo, uri, schema.Rows, schema.Cols)
	}

	size := schema.DType.Size()
	var full []byte // full-height columns [colFrom,colTo)
	if schema.Compression == "lz4" {
		full, err = s.readCompressedCols(uri, schema, colFrom, colTo)
	} else {
		full = make([]byte, (colTo-colFrom)*schema.Rows*size)
		err = s.readAt(uri, int64(colFrom)*int64(schema.Rows)*int64(size), full)
	}
	if err != nil {
		return nil, err
	}

	if rowFrom == 0 && rowTo == schema.Rows {
		return full, nil
	}
	// Gather the requested row window from each column.
	height := rowTo - rowFrom
	out := make([]byte, (colTo-colFrom)*height*size)
	for c := 0; c < colTo-colFrom; c++ {
		src := full[(c*schema.Rows+rowFrom)*size : (c*schema.Rows+rowTo)*size]
		copy(out[c*height*size:], src)
	}
	return out, nil
}

func (s *LocalStore) readCompressedCols(uri string, schema MatrixSchema, colFrom, colTo int) ([]byte, error) {
	size := schema.DType.Size()
	tileBytes := schema.ColTile * schema.Rows * size
	out := make([]byte, (colTo-colFrom)*schema.Rows*size)

	f, err := os.Open(filepath.Join(s.path(uri), valuesFile))
	if err != nil {
		return nil, fmt.Errorf("store: open values for %s: %w", uri, err)
	}
	defer f.Close()

	firstTile := colFrom / schema.ColTile
	lastTile := (colTo - 1) / schema.ColTile
	for t := firstTile; t <= lastTile && colFrom < colTo; t++ {
		if t >= len(schema.TileOffsets) {
			return nil, fmt.Errorf("store: %s tile %d not yet written", uri, t)
		}
		if _, err := f.Seek(schema.TileOffsets[t], io.SeekStart); err != nil {
			return nil, fmt.Errorf("store: seek tile %d of %s: %w", t, uri, err)
		}
		tile := make([]byte, tileBytes)
		n, err := io.ReadFull(lz4.NewReader(f), tile)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("store: decompress tile %d of %s: %w", t, uri, err)
		}
		tile = tile[:n]

		tileStart := t * schema.ColTile
		from := max(colFrom, tileStart)
		to := min(colTo, tileStart+len(tile)/(schema.Rows*size))
		copy(out[(from-colFrom)*schema.Rows*size:],
			tile[(from-tileStart)*schema.Rows*size:(to-tileStart)*schema.Rows*size])
	}
	return out, nil
}

func (s *LocalStore) WriteMatrixCols(ctx context.Context, uri string, colOffset int, data []byte) error {
	schema, err := s.DescribeMatrix(ctx, uri)
	if err != nil {
		return err
	}
	size := schema.DType.Size()
	colBytes := schema.Rows * size
	if len(data)%colBytes != 0 {
		return fmt.Errorf("store: write to %s is not a whole number of columns", uri)
	}
	cols := len(data) / colBytes
	if colOffset < 0 || colOffset+cols > schema.Cols {
		return fmt.Errorf("store: write cols[%d,%d) out of bounds for %s (cols=%d)", colOffset, colOffset+cols, uri, schema.Cols)
	}

	if schema.Compression == "lz4" {
		if colOffset != 0 || cols != schema.Cols {
			return fmt.Errorf("store: compressed array %s only supports whole-array writes", uri)
		}
		return s.writeCompressed(uri, schema, data)
	}
	return s.writeAt(uri, int64(colOffset)*int64(colBytes), data)
}

func (s *LocalStore) writeCompressed(uri string, schema MatrixSchema, data []byte) error {
	size := schema.DType.Size()
	tileBytes := schema.ColTile * schema.Rows * size

	var buf bytes.Buffer
	offsets := make([]int64, 0, (schema.Cols+schema.ColTile-1)/schema.ColTile)
	for start := 0; start < len(data); start += tileBytes {
		end := min(start+tileBytes, len(data))
		offsets = append(offsets, int64(buf.Len()))
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data[start:end]); err != nil {
			return fmt.Errorf("store: compress %s: %w", uri, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("store: compress %s: %w", uri, err)
		}
	}

	if err := os.WriteFile(filepath.Join(s.path(uri), valuesFile), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("store: write values for %s: %w", uri, err)
	}
	schema.TileOffsets = offsets
	return s.writeSchema(uri, schema)
}

func (s *LocalStore) ReadVectorRange(ctx context.Context, uri string, from, to int) ([]byte, error) {
	schema, err := s.DescribeVector(ctx, uri)
	if err != nil {
		return nil, err
	}
	if from < 0 || to > schema.Len || from > to {
		return nil, fmt.Errorf("store: range [%d,%d) out of bounds for %s (len=%d)", from, to, uri, schema.Len)
	}
	size := schema.DType.Size()
	out := make([]byte, (to-from)*size)
	if err := s.readAt(uri, int64(from)*int64(size), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LocalStore) WriteVectorRange(ctx context.Context, uri string, offset int, data []byte) error {
	schema, err := s.DescribeVector(ctx, uri)
	if err != nil {
		return err
	}
	size := schema.DType.Size()
	if len(data)%size != 0 || offset < 0 || offset*size+len(data) > schema.Len*size {
		return fmt.Errorf("store: write [%d,+%d bytes) out of bounds for %s (len=%d)", offset, len(data), uri, schema.Len)
	}
	return s.writeAt(uri, int64(offset)*int64(size), data)
}

func (s *LocalStore) readAt(uri string, off int64, buf []byte) error {
	f, err := os.Open(filepath.Join(s.path(uri), valuesFile))
	if err != nil {
		return fmt.Errorf("store: open values for %s: %w", uri, err)
	}
	defer f.Close()
	if _, err := f.ReadAt(buf, off); err != nil {
		return fmt.Errorf("store: read %s: %w", uri, err)
	}
	return nil
}

func (s *LocalStore) writeAt(uri string, off int64, data []byte) error {
	f, err := os.OpenFile(filepath.Join(s.path(uri), valuesFile), os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("store: open values for %s: %w", uri, err)
	}
	defer f.Close()
	if _, err := f.WriteAt(data, off); err != nil {
		return fmt.Errorf("store: write %s: %w", uri, err)
	}
	return nil
}

package matrix

import "testing"

func TestColumnMajorLayout(t *testing.T) {
	m := New[float32](3, 2)
	m.Set(0, 0, 1)
	m.Set(1, 0, 2)
	m.Set(2, 0, 3)
	m.Set(0, 1, 4)
	m.Set(1, 1, 5)
	m.Set(2, 1, 6)

	want := []float32{1, 2, 3, 4, 5, 6}
	for i, v := range m.Data() {
		if v != want[i] {
			t.Fatalf("data[%d] = %v, want %v", i, v, want[i])
		}
	}

	col := m.Col(1)
	if len(col) != 3 || col[0] != 4 || col[2] != 6 {
		t.Errorf("Col(1) = %v, want [4 5 6]", col)
	}
}

func TestColIsView(t *testing.T) {
	m := New[uint8](2, 2)
	m.Col(1)[0] = 42
	if m.At(0, 1) != 42 {
		t.Error("Col should return a view, not a copy")
	}
}

func TestFromData(t *testing.T) {
	if _, err := FromData[float32](2, 2, make([]float32, 3)); err == nil {
		t.Error("expected error for mismatched buffer length")
	}

	m, err := FromData[float32](2, 2, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("FromData failed: %v", err)
	}
	if m.At(1, 1) != 4 {
		t.Errorf("At(1,1) = %v, want 4", m.At(1, 1))
	}
}

func TestFromColumns(t *testing.T) {
	m, err := FromColumns([][]float32{{0, 0}, {1, 1}, {9, 9}})
	if err != nil {
		t.Fatalf("FromColumns failed: %v", err)
	}
	if m.Rows() != 2 || m.Cols() != 3 {
		t.Fatalf("shape = %dx%d, want 2x3", m.Rows(), m.Cols())
	}
	if m.At(0, 2) != 9 {
		t.Errorf("At(0,2) = %v, want 9", m.At(0, 2))
	}

	if _, err := FromColumns([][]float32{{1}, {1, 2}}); err == nil {
		t.Error("expected error for ragged columns")
	}
}

func TestCopyCol(t *testing.T) {
	src, _ := FromColumns([][]float32{{1, 2}, {3, 4}})
	dst := New[float32](2, 2)
	dst.CopyCol(0, src, 1)
	if dst.At(0, 0) != 3 || dst.At(1, 0) != 4 {
		t.Errorf("CopyCol result = %v", dst.Col(0))
	}
}

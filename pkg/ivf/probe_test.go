package ivf

import (
	"errors"
	"testing"

	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/matrix"
)

func mustMatrix(t *testing.T, cols [][]float32) *matrix.Matrix[float32] {
	t.Helper()
	m, err := matrix.FromColumns(cols)
	if err != nil {
		t.Fatalf("FromColumns failed: %v", err)
	}
	return m
}

func TestProbeRoutesQueries(t *testing.T) {
	centroids := mustMatrix(t, [][]float32{{0, 0}, {10, 10}, {20, 20}})
	queries := mustMatrix(t, [][]float32{{1, 1}, {19, 19}, {11, 11}})

	active, err := Probe(centroids, queries, 1, 1)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	// Query 0 probes partition 0; queries 1 and 2 probe partitions 2 and 1.
	wantParts := []uint64{0, 1, 2}
	if len(active.Partitions) != 3 {
		t.Fatalf("partitions = %v, want %v", active.Partitions, wantParts)
	}
	for i, p := range active.Partitions {
		if p != wantParts[i] {
			t.Fatalf("partitions = %v, want %v", active.Partitions, wantParts)
		}
	}

	if len(active.Queries[0]) != 1 || active.Queries[0][0] != 0 {
		t.Errorf("queries for partition 0 = %v, want [0]", active.Queries[0])
	}
	if len(active.Queries[1]) != 1 || active.Queries[1][0] != 2 {
		t.Errorf("queries for partition 1 = %v, want [2]", active.Queries[1])
	}
	if len(active.Queries[2]) != 1 || active.Queries[2][0] != 1 {
		t.Errorf("queries for partition 2 = %v, want [1]", active.Queries[2])
	}
}

func TestProbeDeduplicates(t *testing.T) {
	centroids := mustMatrix(t, [][]float32{{0, 0}, {10, 10}})
	queries := mustMatrix(t, [][]float32{{0, 0}, {1, 1}, {2, 2}})

	active, err := Probe(centroids, queries, 1, 2)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(active.Partitions) != 1 || active.Partitions[0] != 0 {
		t.Fatalf("partitions = %v, want [0]", active.Partitions)
	}
	want := []int32{0, 1, 2}
	if len(active.Queries[0]) != 3 {
		t.Fatalf("queries = %v, want %v", active.Queries[0], want)
	}
	for i, q := range active.Queries[0] {
		if q != want[i] {
			t.Errorf("queries = %v, want %v (ascending)", active.Queries[0], want)
		}
	}
}

func TestProbeNprobeSpill(t *testing.T) {
	centroids := mustMatrix(t, [][]float32{{0, 0}, {10, 10}, {100, 100}})
	queries := mustMatrix(t, [][]float32{{5, 5}})

	active, err := Probe(centroids, queries, 2, 1)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(active.Partitions) != 2 || active.Partitions[0] != 0 || active.Partitions[1] != 1 {
		t.Fatalf("partitions = %v, want [0 1]", active.Partitions)
	}
}

func TestProbeCentroidTieBreak(t *testing.T) {
	// The query is equidistant from both centroids; nprobe 1 must pick the
	// smaller centroid id.
	centroids := mustMatrix(t, [][]float32{{0, 0}, {10, 10}})
	queries := mustMatrix(t, [][]float32{{5, 5}})

	active, err := Probe(centroids, queries, 1, 1)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(active.Partitions) != 1 || active.Partitions[0] != 0 {
		t.Fatalf("partitions = %v, want [0]", active.Partitions)
	}
}

func TestProbeThreadInvariance(t *testing.T) {
	centroids := mustMatrix(t, [][]float32{{0, 0}, {3, 3}, {6, 6}, {9, 9}, {12, 12}})
	cols := make([][]float32, 40)
	for i := range cols {
		cols[i] = []float32{float32(i % 13), float32((i * 7) % 13)}
	}
	queries := mustMatrix(t, cols)

	a, err := Probe(centroids, queries, 2, 1)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	b, err := Probe(centroids, queries, 2, 8)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if len(a.Partitions) != len(b.Partitions) {
		t.Fatalf("partition counts differ: %d vs %d", len(a.Partitions), len(b.Partitions))
	}
	for i := range a.Partitions {
		if a.Partitions[i] != b.Partitions[i] {
			t.Fatalf("partitions differ at %d", i)
		}
		if len(a.Queries[i]) != len(b.Queries[i]) {
			t.Fatalf("query lists differ for partition %d", a.Partitions[i])
		}
		for j := range a.Queries[i] {
			if a.Queries[i][j] != b.Queries[i][j] {
				t.Fatalf("query lists differ for partition %d", a.Partitions[i])
			}
		}
	}
}

func TestProbeInvalidArguments(t *testing.T) {
	centroids := mustMatrix(t, [][]float32{{0, 0}, {10, 10}})
	queries := mustMatrix(t, [][]float32{{1, 1}})

	cases := []struct {
		name      string
		centroids *matrix.Matrix[float32]
		queries   *matrix.Matrix[float32]
		nprobe    int
	}{
		{"zero nprobe", centroids, queries, 0},
		{"nprobe beyond C", centroids, queries, 3},
		{"nil queries", centroids, nil, 1},
		{"dimension mismatch", centroids, mustMatrix(t, [][]float32{{1, 1, 1}}), 1},
	}
	for _, tc := range cases {
		if _, err := Probe(tc.centroids, tc.queries, tc.nprobe, 1); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: err = %v, want ErrInvalidArgument", tc.name, err)
		}
	}
}

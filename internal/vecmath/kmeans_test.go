package vecmath

import (
	"math/rand"
	"testing"

	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/matrix"
)

func clusteredVectors(t *testing.T, perCluster int) *matrix.Matrix[float32] {
	t.Helper()
	r := rand.New(rand.NewSource(3))
	centers := [][]float32{{0, 0}, {50, 50}, {-50, 50}}
	m := matrix.New[float32](2, perCluster*len(centers))
	for c, center := range centers {
		for i := 0; i < perCluster; i++ {
			col := m.Col(c*perCluster + i)
			col[0] = center[0] + r.Float32()
			col[1] = center[1] + r.Float32()
		}
	}
	return m
}

func TestKMeansPlusPlus(t *testing.T) {
	db := clusteredVectors(t, 50)

	centroids, err := KMeansPlusPlus(db, 3, DefaultKMeansConfig())
	if err != nil {
		t.Fatalf("KMeansPlusPlus failed: %v", err)
	}
	if centroids.Rows() != 2 || centroids.Cols() != 3 {
		t.Fatalf("centroid shape = %dx%d, want 2x3", centroids.Rows(), centroids.Cols())
	}

	// With well-separated clusters every training vector should sit close
	// to its assigned centroid.
	for i := 0; i < db.Cols(); i++ {
		_, dist := NearestCentroid(centroids, db.Col(i))
		if dist > 4 {
			t.Errorf("vector %d is %v away from its centroid", i, dist)
		}
	}
}

func TestKMeansDeterministic(t *testing.T) {
	db := clusteredVectors(t, 30)

	a, err := KMeansPlusPlus(db, 3, DefaultKMeansConfig())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	b, err := KMeansPlusPlus(db, 3, DefaultKMeansConfig())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	for i, v := range a.Data() {
		if b.Data()[i] != v {
			t.Fatalf("runs diverge at element %d: %v vs %v", i, v, b.Data()[i])
		}
	}
}

func TestKMeansErrors(t *testing.T) {
	db := matrix.New[float32](2, 3)
	if _, err := KMeansPlusPlus(db, 0, DefaultKMeansConfig()); err == nil {
		t.Error("expected error for k=0")
	}
	if _, err := KMeansPlusPlus(db, 5, DefaultKMeansConfig()); err == nil {
		t.Error("expected error for k > number of vectors")
	}
}

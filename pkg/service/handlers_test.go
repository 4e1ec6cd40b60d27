package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/config"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/ivf"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/matrix"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/observability"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/store"
)

// newTestServer builds a tiny index in a temp store and returns a server
// over it.
func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	ctx := context.Background()
	s := store.NewLocalStore(t.TempDir())

	centroids, err := matrix.FromColumns([][]float32{{0, 0}, {10, 10}})
	if err != nil {
		t.Fatalf("centroids: %v", err)
	}
	if err := store.WriteMatrix(ctx, s, "centroids", centroids, 0, true, ""); err != nil {
		t.Fatalf("write centroids: %v", err)
	}
	db, err := matrix.FromColumns([][]float32{{0, 0}, {1, 1}, {9, 9}, {10, 10}})
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	if err := store.WriteMatrix(ctx, s, "db", db, 0, true, ""); err != nil {
		t.Fatalf("write db: %v", err)
	}
	if err := ivf.BuildIndexFromURI[float32](ctx, s, "db", ivf.BuildConfig{
		CentroidsURI: "centroids",
		PartsURI:     "parts",
		IndexURI:     "index",
		IDURI:        "ids",
		Create:       true,
	}); err != nil {
		t.Fatalf("build: %v", err)
	}

	cfg := config.Default()
	cfg.Store.DataDir = "unused"
	if mutate != nil {
		mutate(cfg)
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	srv, err := NewServer(cfg, s, nil, metrics, observability.NewTimers())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := postJSON(t, srv.Handler(), "/v1/query", QueryRequest{
		Queries: [][]float32{{0, 0}},
		Nprobe:  1,
		K:       2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.IDs) != 1 || len(resp.IDs[0]) != 2 {
		t.Fatalf("ids = %v, want one query with two neighbors", resp.IDs)
	}
	if resp.IDs[0][0] != 0 || resp.IDs[0][1] != 1 {
		t.Errorf("ids = %v, want [0 1]", resp.IDs[0])
	}
}

func TestQueryStripsSentinels(t *testing.T) {
	srv := newTestServer(t, nil)

	// Partition 0 holds only two vectors; asking for five returns two.
	rec := postJSON(t, srv.Handler(), "/v1/query", QueryRequest{
		Queries: [][]float32{{0, 0}},
		Nprobe:  1,
		K:       5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.IDs[0]) != 2 {
		t.Errorf("ids = %v, want sentinels stripped down to 2 entries", resp.IDs[0])
	}
}

func TestQueryRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := postJSON(t, srv.Handler(), "/v1/query", QueryRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty queries: status = %d, want 400", rec.Code)
	}

	rec = postJSON(t, srv.Handler(), "/v1/query", QueryRequest{
		Queries: [][]float32{{0, 0}},
		Nprobe:  99,
		K:       1,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("nprobe beyond C: status = %d, want 422", rec.Code)
	}
}

func TestBuildEndpointReloadsIndex(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := postJSON(t, srv.Handler(), "/v1/build", BuildRequest{DBURI: "db"})
	if rec.Code != http.StatusOK {
		t.Fatalf("build status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, srv.Handler(), "/v1/query", QueryRequest{
		Queries: [][]float32{{10, 10}},
		Nprobe:  1,
		K:       1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("query after build: status = %d", rec.Code)
	}
	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.IDs[0][0] != 3 {
		t.Errorf("nearest to (10,10) = %v, want 3", resp.IDs[0])
	}
}

func TestHealthAndStats(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Partitions != 2 || stats.Vectors != 4 || stats.Dimension != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID")
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Errorf("request id = %q, want fixed-id", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	srv := newTestServer(t, func(c *config.Config) {
		c.Auth.Enabled = true
		c.Auth.JWTSecret = secret
	})

	// No token: rejected.
	rec := postJSON(t, srv.Handler(), "/v1/query", QueryRequest{
		Queries: [][]float32{{0, 0}}, Nprobe: 1, K: 1,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d, want 401", rec.Code)
	}

	// Health stays public.
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	healthRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(healthRec, req)
	if healthRec.Code != http.StatusOK {
		t.Errorf("health with auth enabled: status = %d", healthRec.Code)
	}

	// Valid token: accepted.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &struct {
		UserID string   `json:"user_id"`
		Roles  []string `json:"roles"`
		jwt.RegisteredClaims
	}{
		UserID: "tester",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	body, _ := json.Marshal(QueryRequest{Queries: [][]float32{{0, 0}}, Nprobe: 1, K: 1})
	authedReq := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	authedReq.Header.Set("Authorization", "Bearer "+signed)
	authedRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(authedRec, authedReq)
	if authedRec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, body = %s", authedRec.Code, authedRec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.RequestsPerSec = 1
		c.RateLimit.Burst = 2
	})

	limited := false
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("burst of 5 requests against burst limit 2 was never limited")
	}
}

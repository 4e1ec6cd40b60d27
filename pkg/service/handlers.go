package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/config"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/ivf"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/matrix"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/observability"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/service/middleware"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/store"
)

// Handler serves the query and build endpoints over one float32 index.
type Handler struct {
	store    store.Store
	storeCfg config.StoreConfig
	defaults config.SearchConfig

	log     *observability.Logger
	metrics *observability.Metrics
	timers  *observability.Timers

	mu    sync.RWMutex
	index *ivf.Index[float32]
}

// NewHandler wires a handler over the configured store. The index is
// opened lazily on the first query and re-opened after every build.
func NewHandler(s store.Store, storeCfg config.StoreConfig, defaults config.SearchConfig,
	log *observability.Logger, metrics *observability.Metrics, timers *observability.Timers) *Handler {
	return &Handler{
		store:    s,
		storeCfg: storeCfg,
		defaults: defaults,
		log:      log,
		metrics:  metrics,
		timers:   timers,
	}
}

func (h *Handler) getIndex(r *http.Request) (*ivf.Index[float32], error) {
	h.mu.RLock()
	ix := h.index
	h.mu.RUnlock()
	if ix != nil {
		return ix, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index != nil {
		return h.index, nil
	}
	ix, err := ivf.OpenIndex[float32](r.Context(), ivf.IndexConfig{
		Store:    h.store,
		PartsURI: h.storeCfg.PartsURI,
		IDURI:    h.storeCfg.IDURI,
		Logger:   h.log,
		Metrics:  h.metrics,
		Timers:   h.timers,
	}, h.storeCfg.CentroidsURI, h.storeCfg.IndexURI)
	if err != nil {
		return nil, err
	}
	h.index = ix
	return ix, nil
}

func (h *Handler) dropIndex() {
	h.mu.Lock()
	h.index = nil
	h.mu.Unlock()
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Queries [][]float32 `json:"queries"`
	Nprobe  int         `json:"nprobe,omitempty"`
	K       int         `json:"k,omitempty"`
}

// QueryResponse returns one neighbor list per query, ascending by
// distance. Queries that matched fewer than k vectors return short lists;
// the engine's sentinel slots are stripped.
type QueryResponse struct {
	IDs [][]uint64 `json:"ids"`
}

// Query handles POST /v1/query
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Queries) == 0 {
		middleware.WriteJSONError(w, "queries must not be empty", http.StatusBadRequest)
		return
	}

	queries, err := matrix.FromColumns(req.Queries)
	if err != nil {
		middleware.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := ivf.SearchParams{
		Nprobe:   req.Nprobe,
		K:        req.K,
		Nthreads: h.defaults.Nthreads,
		NumNodes: h.defaults.NumNodes,
	}
	if params.Nprobe == 0 {
		params.Nprobe = h.defaults.Nprobe
	}
	if params.K == 0 {
		params.K = h.defaults.K
	}

	ix, err := h.getIndex(r)
	if err != nil {
		h.log.Error("open index failed", map[string]interface{}{
			"request_id": middleware.GetRequestID(r.Context()),
			"error":      err.Error(),
		})
		middleware.WriteJSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	topK, err := ix.Search(r.Context(), queries, params)
	if err != nil {
		middleware.WriteJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	resp := QueryResponse{IDs: make([][]uint64, topK.Cols())}
	for q := 0; q < topK.Cols(); q++ {
		col := topK.Col(q)
		ids := make([]uint64, 0, len(col))
		for _, id := range col {
			if id == ivf.Sentinel {
				break
			}
			ids = append(ids, id)
		}
		resp.IDs[q] = ids
	}
	writeJSON(w, resp)
}

// BuildRequest is the body of POST /v1/build.
type BuildRequest struct {
	DBURI    string `json:"db_uri"`
	StartPos int    `json:"start_pos,omitempty"`
	EndPos   int    `json:"end_pos,omitempty"`
}

// Build handles POST /v1/build
func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.DBURI == "" {
		middleware.WriteJSONError(w, "db_uri is required", http.StatusBadRequest)
		return
	}

	cfg := ivf.BuildConfig{
		CentroidsURI: h.storeCfg.CentroidsURI,
		PartsURI:     h.storeCfg.PartsURI,
		IndexURI:     h.storeCfg.IndexURI,
		IDURI:        h.storeCfg.IDURI,
		StartPos:     req.StartPos,
		EndPos:       req.EndPos,
		Nthreads:     h.defaults.Nthreads,
		Create:       req.StartPos == 0,
		Compression:  h.storeCfg.Compression,
		Logger:       h.log,
		Metrics:      h.metrics,
		Timers:       h.timers,
	}
	if err := ivf.BuildIndexFromURI[float32](r.Context(), h.store, req.DBURI, cfg); err != nil {
		middleware.WriteJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	h.dropIndex()

	h.log.Info("index rebuilt", map[string]interface{}{
		"db_uri":     req.DBURI,
		"request_id": middleware.GetRequestID(r.Context()),
	})
	writeJSON(w, map[string]string{"status": "built"})
}

// HealthCheck handles GET /v1/health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Dimension  int                                `json:"dimension"`
	Partitions int                                `json:"partitions"`
	Vectors    uint64                             `json:"vectors"`
	Timers     map[string]observability.TimerStat `json:"timers,omitempty"`
}

// Stats handles GET /v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ix, err := h.getIndex(r)
	if err != nil {
		middleware.WriteJSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, StatsResponse{
		Dimension:  ix.Dimension(),
		Partitions: ix.NumPartitions(),
		Vectors:    ix.NumVectors(),
		Timers:     h.timers.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

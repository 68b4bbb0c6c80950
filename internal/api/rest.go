package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"kvs/internal/logging"
	"kvs/internal/monitoring"
	"kvs/internal/pool"
	"kvs/internal/storage"
)

// Options wires optional collaborators into the admin API. Nil fields
// disable the endpoints that need them.
type Options struct {
	Metrics     *monitoring.KvsMetrics
	Health      *monitoring.HealthManager
	Pool        pool.ThreadPool
	MetricsPath string
	Version     string
}

// RESTHandler serves the admin HTTP API over a storage engine.
type RESTHandler struct {
	engine storage.StorageEngine
	logger *logging.Logger
	opts   Options
}

func NewRESTHandler(engine storage.StorageEngine, logger *logging.Logger, opts Options) *RESTHandler {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &RESTHandler{
		engine: engine,
		logger: logger.Component("admin"),
		opts:   opts,
	}
}

// PutRequest is the body of PUT /api/v1/kv/{key}.
type PutRequest struct {
	Value string `json:"value"`
}

type PutResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type GetResponse struct {
	Found bool   `json:"found"`
	Value string `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type CompactResponse struct {
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type StatsResponse struct {
	Engine map[string]interface{} `json:"engine,omitempty"`
	Pool   *pool.Stats            `json:"pool,omitempty"`
}

// ErrorResponse represents a generic error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// statusFor maps a storage failure to an HTTP status.
func statusFor(err error) int {
	switch storage.KindOf(err) {
	case storage.KindKeyNotFound:
		return http.StatusNotFound
	case storage.KindBackend:
		return http.StatusBadGateway
	default:
		if errors.Is(err, storage.ErrClosed) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}

func (h *RESTHandler) record(op string, err error, start time.Time) {
	if h.opts.Metrics == nil {
		return
	}
	code := ""
	if err != nil {
		code = storage.KindOf(err).String()
	}
	h.opts.Metrics.RecordRequest("http", op, code, time.Since(start))
}

// PUT /api/v1/kv/{key}
func (h *RESTHandler) PutKey(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	key := mux.Vars(r)["key"]

	var req PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "PUT request with invalid JSON", "error", err.Error())
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON request")
		return
	}

	err := h.engine.Set(key, req.Value)
	h.logger.EngineOp(ctx, "set", key, time.Since(start), err)
	h.record("set", err, start)

	if err != nil {
		h.writeJSONResponse(w, statusFor(err), PutResponse{Error: err.Error()})
		return
	}
	h.writeJSONResponse(w, http.StatusOK, PutResponse{Success: true})
}

// GET /api/v1/kv/{key}
func (h *RESTHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := mux.Vars(r)["key"]

	value, err := h.engine.Get(key)
	h.logger.EngineOp(r.Context(), "get", key, time.Since(start), err)
	h.record("get", err, start)

	if err != nil {
		resp := GetResponse{Found: false}
		if !errors.Is(err, storage.ErrKeyNotFound) {
			h.logger.WithError(err).WithField("key", key).Error("Failed to get key")
			resp.Error = err.Error()
		}
		h.writeJSONResponse(w, statusFor(err), resp)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, GetResponse{Found: true, Value: value})
}

// DELETE /api/v1/kv/{key}
func (h *RESTHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := mux.Vars(r)["key"]

	err := h.engine.Remove(key)
	h.logger.EngineOp(r.Context(), "rm", key, time.Since(start), err)
	h.record("rm", err, start)

	if err != nil {
		h.writeJSONResponse(w, statusFor(err), DeleteResponse{Error: err.Error()})
		return
	}
	h.writeJSONResponse(w, http.StatusOK, DeleteResponse{Success: true})
}

// POST /api/v1/compact
func (h *RESTHandler) Compact(w http.ResponseWriter, r *http.Request) {
	compactor, ok := h.engine.(storage.Compactor)
	if !ok {
		h.writeErrorResponse(w, http.StatusNotImplemented, "Engine does not support compaction")
		return
	}

	start := time.Now()
	err := compactor.Compact()
	duration := time.Since(start)
	if h.opts.Metrics != nil {
		h.opts.Metrics.Compactions.Inc()
	}

	if err != nil {
		h.logger.WithError(err).ErrorContext(r.Context(), "Compaction failed")
		h.writeJSONResponse(w, statusFor(err), CompactResponse{DurationMS: duration.Milliseconds(), Error: err.Error()})
		return
	}

	h.logger.InfoContext(r.Context(), "Compaction completed", "duration_ms", duration.Milliseconds())
	h.writeJSONResponse(w, http.StatusOK, CompactResponse{Success: true, DurationMS: duration.Milliseconds()})
}

// GET /api/v1/stats
func (h *RESTHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse
	if sp, ok := h.engine.(storage.StatsProvider); ok {
		resp.Engine = sp.Stats()
	}
	if h.opts.Pool != nil {
		stats := h.opts.Pool.Stats()
		resp.Pool = &stats
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// GET /health
func (h *RESTHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health == nil {
		h.writeJSONResponse(w, http.StatusOK, map[string]string{
			"status":  string(monitoring.HealthStatusHealthy),
			"version": h.opts.Version,
		})
		return
	}

	resp := h.opts.Health.CheckHealth(r.Context())
	status := http.StatusOK
	if resp.Status == monitoring.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSONResponse(w, status, resp)
}

func (h *RESTHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (h *RESTHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSONResponse(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    statusCode,
		Message: http.StatusText(statusCode),
	})
}

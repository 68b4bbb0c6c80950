package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"kvs/internal/logging"
	"kvs/internal/monitoring"
)

// SetupRoutes configures all admin routes
func (h *RESTHandler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(logging.CorrelationIDMiddleware(h.logger))
	router.Use(logging.LoggingMiddleware(h.logger))

	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/kv/{key}", h.PutKey).Methods(http.MethodPut)
	v1.HandleFunc("/kv/{key}", h.GetKey).Methods(http.MethodGet)
	v1.HandleFunc("/kv/{key}", h.DeleteKey).Methods(http.MethodDelete)

	v1.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	v1.HandleFunc("/compact", h.Compact).Methods(http.MethodPost)
	v1.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	if h.opts.Metrics != nil {
		router.Handle(h.opts.MetricsPath, monitoring.NewPrometheusExporter(h.opts.Metrics.GetRegistry())).Methods(http.MethodGet)
	}

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/", h.RootHandler).Methods(http.MethodGet)

	return router
}

// RootHandler lists the available endpoints
func (h *RESTHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"set":     "PUT /api/v1/kv/{key}",
		"get":     "GET /api/v1/kv/{key}",
		"rm":      "DELETE /api/v1/kv/{key}",
		"stats":   "GET /api/v1/stats",
		"compact": "POST /api/v1/compact",
		"health":  "GET /health",
	}
	if h.opts.Metrics != nil {
		endpoints["metrics"] = "GET " + h.opts.MetricsPath
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"service":   "kvs",
		"version":   h.opts.Version,
		"endpoints": endpoints,
	})
}

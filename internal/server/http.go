package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"kvs/internal/api"
	"kvs/internal/config"
	"kvs/internal/logging"
)

// HTTPServer serves the admin API.
type HTTPServer struct {
	logger *logging.Logger
	server *http.Server
}

func NewHTTPServer(cfg config.AdminConfig, handler *api.RESTHandler, logger *logging.Logger) *HTTPServer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &HTTPServer{
		logger: logger.Component("admin"),
		server: &http.Server{
			Handler:      handler.SetupRoutes(),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Serve blocks serving ln until Stop; a requested stop returns nil.
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server", "address", ln.Addr().String())

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server gracefully
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

package server

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"kvs/internal/api"
	"kvs/internal/config"
	"kvs/internal/logging"
	"kvs/internal/monitoring"
	"kvs/internal/pool"
	"kvs/internal/storage"
)

// Version is reported by the admin API.
var Version = "0.1.0"

// Server owns the engine, the worker pool and every enabled transport.
type Server struct {
	config  *config.Config
	logger  *logging.Logger
	engine  storage.Engine
	pool    pool.ThreadPool
	metrics *monitoring.KvsMetrics

	kvs   *KvsServer
	grpc  *GRPCServer
	admin *HTTPServer

	mu        sync.Mutex
	addrs     map[string]net.Addr
	ready     chan struct{}
	startTime time.Time
}

// NewServer opens the configured engine and builds the transports. The
// engine is closed again if anything after it fails.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewLogger(&cfg.Logging)
	}

	logger.Info("Initializing server",
		"version", Version,
		"engine", cfg.Storage.Engine,
		"data_path", cfg.Storage.DataPath,
		"workers", cfg.Server.Workers,
		"pool", cfg.Server.Pool,
	)

	engine, err := storage.NewStorageEngine(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage engine: %w", err)
	}

	workers, err := pool.New(cfg.Server.Pool, cfg.Server.Workers, logger)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}

	metrics := monitoring.NewKvsMetrics()
	registry := metrics.GetRegistry()
	registry.GaugeFunc("kvs_pool_workers", "Live pool workers", nil, func() float64 {
		return float64(workers.Stats().Workers)
	})
	registry.GaugeFunc("kvs_pool_queued", "Tasks waiting for a worker", nil, func() float64 {
		return float64(workers.Stats().Queued)
	})
	registry.GaugeFunc("kvs_pool_panics", "Tasks that panicked", nil, func() float64 {
		return float64(workers.Stats().Panics)
	})
	if sp, ok := engine.(storage.StatsProvider); ok {
		registry.GaugeFunc("kvs_storage_keys", "Live keys", nil, func() float64 {
			if keys, ok := sp.Stats()["keys"].(int); ok {
				return float64(keys)
			}
			return 0
		})
	}

	s := &Server{
		config:    cfg,
		logger:    logger,
		engine:    engine,
		pool:      workers,
		metrics:   metrics,
		kvs:       NewKvsServer(engine, workers, logger, metrics),
		addrs:     make(map[string]net.Addr),
		ready:     make(chan struct{}),
		startTime: time.Now(),
	}

	if cfg.GRPC.Enabled {
		s.grpc = NewGRPCServer(engine, logger, metrics)
	}
	if cfg.Admin.Enabled {
		expected := 0
		if cfg.Server.Pool != "naive" {
			expected = cfg.Server.Workers
		}
		health := monitoring.NewHealthManager(Version)
		health.RegisterChecker(monitoring.NewStorageHealthChecker(engine))
		health.RegisterChecker(monitoring.NewPoolHealthChecker(workers, expected))

		handler := api.NewRESTHandler(engine, logger, api.Options{
			Metrics:     metrics,
			Health:      health,
			Pool:        workers,
			MetricsPath: cfg.Admin.MetricsPath,
			Version:     Version,
		})
		s.admin = NewHTTPServer(cfg.Admin, handler, logger)
	}

	return s, nil
}

// Start runs the server until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run listens on every enabled transport and serves until ctx is cancelled
// or a transport fails, then shuts everything down and closes the engine.
func (s *Server) Run(ctx context.Context) error {
	host := s.config.Server.Host

	kvsLn, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		s.closeResources()
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address(), err)
	}
	s.setAddr("tcp", kvsLn.Addr())

	var grpcLn, adminLn net.Listener
	if s.grpc != nil {
		if grpcLn, err = net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(s.config.GRPC.Port))); err != nil {
			kvsLn.Close()
			s.closeResources()
			return fmt.Errorf("failed to listen for gRPC: %w", err)
		}
		s.setAddr("grpc", grpcLn.Addr())
	}
	if s.admin != nil {
		if adminLn, err = net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(s.config.Admin.Port))); err != nil {
			kvsLn.Close()
			if grpcLn != nil {
				grpcLn.Close()
			}
			s.closeResources()
			return fmt.Errorf("failed to listen for admin API: %w", err)
		}
		s.setAddr("admin", adminLn.Addr())
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.kvs.Serve(runCtx, kvsLn); err != nil {
			errChan <- fmt.Errorf("kvs server failed: %w", err)
		}
	}()
	if s.grpc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.grpc.Serve(grpcLn); err != nil {
				errChan <- fmt.Errorf("gRPC server failed: %w", err)
			}
		}()
	}
	if s.admin != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.admin.Serve(adminLn); err != nil {
				errChan <- fmt.Errorf("HTTP server failed: %w", err)
			}
		}()
	}

	s.logger.Info("Server started successfully", "addresses", s.addrStrings())
	close(s.ready)

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Received shutdown signal")
	case runErr = <-errChan:
		s.logger.Error("Server encountered an error", "error", runErr.Error())
	}

	cancel()
	s.shutdown()
	wg.Wait()
	s.closeResources()

	s.logger.Info("Server shutdown completed", "uptime", time.Since(s.startTime).Round(time.Second).String())
	return runErr
}

func (s *Server) shutdown() {
	s.kvs.Shutdown()
	if s.grpc != nil {
		s.grpc.Stop()
	}
	if s.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.admin.Stop(ctx); err != nil {
			s.logger.Error("Failed to stop HTTP server", "error", err.Error())
		}
	}
}

// closeResources drains the pool before closing the engine so no queued
// task touches a closed engine.
func (s *Server) closeResources() {
	s.pool.Close()
	if err := s.engine.Close(); err != nil {
		s.logger.Error("Failed to close storage engine", "error", err.Error())
	}
}

// Ready is closed once every listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address of "tcp", "grpc" or "admin", or nil.
func (s *Server) Addr(transport string) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrs[transport]
}

func (s *Server) setAddr(transport string, addr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs[transport] = addr
}

func (s *Server) addrStrings() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.addrs))
	for name, addr := range s.addrs {
		out[name] = addr.String()
	}
	return out
}

func (s *Server) GetUptime() time.Duration {
	return time.Since(s.startTime)
}

package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"kvs/internal/logging"
	"kvs/internal/monitoring"
	"kvs/internal/pool"
	"kvs/internal/protocol"
	"kvs/internal/storage"
)

// KvsServer accepts client connections and serves their request streams.
//
// Each connection gets one reader goroutine. The reader decodes a request,
// hands its execution to the pool and waits for the response to be written
// before decoding the next one, so responses on a connection keep request
// order while different connections proceed independently.
type KvsServer struct {
	engine  storage.StorageEngine
	pool    pool.ThreadPool
	logger  *logging.Logger
	metrics *monitoring.KvsMetrics

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewKvsServer builds a server over engine and p. metrics may be nil.
func NewKvsServer(engine storage.StorageEngine, p pool.ThreadPool, logger *logging.Logger, metrics *monitoring.KvsMetrics) *KvsServer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &KvsServer{
		engine:  engine,
		pool:    p,
		logger:  logger.Component("tcp"),
		metrics: metrics,
		conns:   make(map[net.Conn]struct{}),
		quit:    make(chan struct{}),
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *KvsServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or Shutdown is
// called, then waits for open connections to finish. It returns nil on a
// requested stop.
func (s *KvsServer) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.Shutdown)
	defer stop()

	s.logger.Info("Listening for clients", "address", ln.Addr().String())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				delay = backoff(delay)
				s.logger.Warn("Accept failed, retrying", "error", err.Error(), "retry_in", delay.String())
				time.Sleep(delay)
				continue
			}
			return err
		}
		delay = 0

		if !s.track(conn) {
			conn.Close()
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func backoff(delay time.Duration) time.Duration {
	if delay == 0 {
		return 5 * time.Millisecond
	}
	if delay *= 2; delay > time.Second {
		return time.Second
	}
	return delay
}

// Addr returns the listening address, or nil before Serve.
func (s *KvsServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and closes every open connection. Requests
// already handed to the pool still run; their responses are discarded.
func (s *KvsServer) Shutdown() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
}

func (s *KvsServer) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *KvsServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *KvsServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *KvsServer) handleConn(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	ctx = logging.ContextWithConnectionID(ctx, logging.NewConnectionID())
	remote := conn.RemoteAddr().String()
	s.logger.ConnectionEvent(ctx, "accepted", remote, nil)
	if s.metrics != nil {
		s.metrics.ConnectionsTotal.Inc()
		s.metrics.ConnectionsActive.Inc()
		defer s.metrics.ConnectionsActive.Dec()
	}

	dec := protocol.NewDecoder(conn)
	enc := protocol.NewEncoder(conn)
	served := 0

	for {
		req, err := dec.ReadRequest()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), s.isClosing():
				s.logger.ConnectionEvent(ctx, "closed", remote, map[string]interface{}{"requests": served})
			case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrUnexpectedEOF):
				s.logger.ConnectionEvent(ctx, "dropped", remote, map[string]interface{}{"requests": served, "error": err.Error()})
			default:
				if s.metrics != nil {
					s.metrics.DecodeErrors.Inc()
				}
				s.logger.WithContext(ctx).Warn("Malformed request, closing connection",
					"remote_addr", remote,
					"error", err.Error(),
				)
			}
			return
		}

		if !s.dispatch(ctx, enc, req) {
			return
		}
		served++
	}
}

// dispatch runs req on the pool and blocks until its response is written.
// It reports whether the connection is still usable.
func (s *KvsServer) dispatch(ctx context.Context, enc *protocol.Encoder, req protocol.Request) bool {
	done := make(chan struct{})
	var (
		written  bool
		writeErr error
	)

	s.pool.Spawn(func() {
		defer close(done)

		start := time.Now()
		resp := Execute(s.engine, req)
		s.logger.EngineOp(ctx, string(req.Op), req.Key, time.Since(start), responseError(resp))
		if s.metrics != nil {
			s.metrics.RecordRequest("tcp", string(req.Op), resp.Code, time.Since(start))
		}

		writeErr = enc.WriteResponse(resp)
		written = true
	})

	select {
	case <-done:
	case <-s.quit:
		return false
	}

	if !written {
		// The task panicked before responding; the pool has already
		// replaced its worker.
		writeErr = enc.WriteResponse(protocol.Err(req.Op, storage.KindUnknown.String(), "internal error"))
	}
	if writeErr != nil {
		s.logger.WithContext(ctx).Warn("Failed to write response", "error", writeErr.Error())
		return false
	}
	return true
}

func responseError(resp protocol.Response) error {
	if !resp.IsError() {
		return nil
	}
	return errors.New(resp.Error)
}

package server

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kvs/internal/logging"
	"kvs/internal/monitoring"
	"kvs/internal/protocol"
	"kvs/internal/storage"
)

// KvsService is the gRPC service "kvs.Kvs". Domain failures travel inside
// the Response; a gRPC status error means the call itself was rejected.
type KvsService interface {
	Set(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	Get(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	Remove(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// KvsServiceDesc describes KvsService to grpc.Server.RegisterService.
var KvsServiceDesc = grpc.ServiceDesc{
	ServiceName: protocol.GRPCServiceName,
	HandlerType: (*KvsService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: protocol.GRPCMethodSet, Handler: unaryHandler(protocol.GRPCMethodSet, KvsService.Set)},
		{MethodName: protocol.GRPCMethodGet, Handler: unaryHandler(protocol.GRPCMethodGet, KvsService.Get)},
		{MethodName: protocol.GRPCMethodRemove, Handler: unaryHandler(protocol.GRPCMethodRemove, KvsService.Remove)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kvs",
}

func unaryHandler(method string, call func(KvsService, context.Context, *protocol.Request) (*protocol.Response, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(protocol.Request)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(KvsService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: protocol.GRPCFullMethod(method),
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(KvsService), ctx, req.(*protocol.Request))
		})
	}
}

// GRPCServer serves KvsService over a storage engine.
type GRPCServer struct {
	engine  storage.StorageEngine
	logger  *logging.Logger
	metrics *monitoring.KvsMetrics
	server  *grpc.Server
}

var _ KvsService = (*GRPCServer)(nil)

func NewGRPCServer(engine storage.StorageEngine, logger *logging.Logger, metrics *monitoring.KvsMetrics) *GRPCServer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &GRPCServer{
		engine:  engine,
		logger:  logger.Component("grpc"),
		metrics: metrics,
	}
	s.server = grpc.NewServer(grpc.UnaryInterceptor(s.loggingInterceptor))
	s.server.RegisterService(&KvsServiceDesc, s)
	return s
}

// Serve blocks serving ln until Stop.
func (s *GRPCServer) Serve(ln net.Listener) error {
	s.logger.Info("Starting gRPC server", "address", ln.Addr().String())
	return s.server.Serve(ln)
}

// Stop waits for in-flight calls to finish.
func (s *GRPCServer) Stop() {
	s.logger.Info("Stopping gRPC server")
	s.server.GracefulStop()
}

func (s *GRPCServer) Set(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return s.execute(protocol.OpSet, req)
}

func (s *GRPCServer) Get(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return s.execute(protocol.OpGet, req)
}

func (s *GRPCServer) Remove(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return s.execute(protocol.OpRemove, req)
}

// execute pins the op to the method called, so a Get call cannot be turned
// into a write by the request body.
func (s *GRPCServer) execute(op protocol.Op, req *protocol.Request) (*protocol.Response, error) {
	r := *req
	r.Op = op
	if err := r.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	resp := Execute(s.engine, r)
	if s.metrics != nil {
		s.metrics.RecordRequest("grpc", string(op), resp.Code, time.Since(start))
	}
	return &resp, nil
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()

	resp, err := handler(ctx, req)

	duration := time.Since(start)
	if err != nil {
		s.logger.WarnContext(ctx, "gRPC request failed",
			"method", info.FullMethod,
			"duration_us", duration.Microseconds(),
			"error", err.Error(),
		)
	} else {
		s.logger.DebugContext(ctx, "gRPC request completed",
			"method", info.FullMethod,
			"duration_us", duration.Microseconds(),
		)
	}

	return resp, err
}

package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"kvs/internal/protocol"
)

// GRPCClient calls the kvs.Kvs gRPC service.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// NewGRPCClient creates a client for target. The connection is established
// lazily by gRPC; extra dial options are appended after the defaults.
func NewGRPCClient(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(protocol.JSONCodecName)),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) Set(ctx context.Context, key, value string) error {
	_, err := c.invoke(ctx, protocol.GRPCMethodSet, protocol.SetRequest(key, value))
	return err
}

func (c *GRPCClient) Get(ctx context.Context, key string) (string, error) {
	return c.invoke(ctx, protocol.GRPCMethodGet, protocol.GetRequest(key))
}

func (c *GRPCClient) Remove(ctx context.Context, key string) error {
	_, err := c.invoke(ctx, protocol.GRPCMethodRemove, protocol.RemoveRequest(key))
	return err
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req protocol.Request) (string, error) {
	var resp protocol.Response
	if err := c.conn.Invoke(ctx, protocol.GRPCFullMethod(method), &req, &resp); err != nil {
		if s, ok := status.FromError(err); ok {
			switch s.Code() {
			case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
				return "", fmt.Errorf("%w: %s: %v", ErrConnection, method, err)
			}
		}
		return "", err
	}
	if resp.IsError() {
		return "", responseError(resp)
	}
	return resp.Value, nil
}

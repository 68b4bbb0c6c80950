// Package client talks to a kvs server over its JSON stream protocol or over
// gRPC.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"kvs/internal/protocol"
	"kvs/internal/storage"
)

// ErrConnection is wrapped by every failure to reach or talk to the server.
var ErrConnection = errors.New("connection error")

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("client is closed")

// Config holds client configuration
type Config struct {
	Address     string
	DialTimeout time.Duration
	Retry       RetryPolicy
}

// DefaultConfig returns a default client configuration
func DefaultConfig() *Config {
	return &Config{
		Address:     "127.0.0.1:4000",
		DialTimeout: 5 * time.Second,
		Retry:       DefaultRetryPolicy(),
	}
}

// Client is a connection to a kvs server. Requests on one Client are
// serialized; a broken connection is redialed on the next call.
type Client struct {
	config *Config

	mu     sync.Mutex
	conn   net.Conn
	enc    *protocol.Encoder
	dec    *protocol.Decoder
	closed bool
}

// NewClient dials config.Address.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Address == "" {
		return nil, fmt.Errorf("server address must be provided")
	}

	c := &Client{config: config}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect dials addr with the default configuration.
func Connect(addr string) (*Client, error) {
	config := DefaultConfig()
	config.Address = addr
	return NewClient(context.Background(), config)
}

func (c *Client) connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.config.DialTimeout}

	var conn net.Conn
	err := c.config.Retry.do(ctx, func() error {
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", c.config.Address)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, c.config.Address, err)
	}

	c.conn = conn
	c.enc = protocol.NewEncoder(conn)
	c.dec = protocol.NewDecoder(conn)
	return nil
}

// Set stores value under key.
func (c *Client) Set(key, value string) error {
	_, err := c.do(protocol.SetRequest(key, value))
	return err
}

// Get returns the value under key, or storage.ErrKeyNotFound.
func (c *Client) Get(key string) (string, error) {
	return c.do(protocol.GetRequest(key))
}

// Remove deletes key. Removing a missing key returns storage.ErrKeyNotFound.
func (c *Client) Remove(key string) error {
	_, err := c.do(protocol.RemoveRequest(key))
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) do(req protocol.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}
	if c.conn == nil {
		if err := c.connect(context.Background()); err != nil {
			return "", err
		}
	}

	if err := c.enc.WriteRequest(req); err != nil {
		c.reset()
		return "", fmt.Errorf("%w: send %s: %v", ErrConnection, req.Op, err)
	}
	resp, err := c.dec.ReadResponse()
	if err != nil {
		c.reset()
		return "", fmt.Errorf("%w: receive %s: %v", ErrConnection, req.Op, err)
	}
	if resp.IsError() {
		return "", responseError(resp)
	}
	return resp.Value, nil
}

// reset drops a connection whose stream state is unknown.
func (c *Client) reset() {
	c.conn.Close()
	c.conn, c.enc, c.dec = nil, nil, nil
}

// responseError rebuilds a typed error from an Err response.
func responseError(resp protocol.Response) error {
	kind := storage.ParseKind(resp.Code)
	if kind == storage.KindKeyNotFound {
		return storage.ErrKeyNotFound
	}
	msg := resp.Error
	if msg == "" {
		msg = resp.Code
	}
	return &storage.Error{Kind: kind, Op: "server " + string(resp.Op), Err: errors.New(msg)}
}

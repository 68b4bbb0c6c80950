package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"kvs/internal/protocol"
	"kvs/internal/storage"
	"kvs/internal/testutil"
)

func TestServer_RunAndShutdown(t *testing.T) {
	cfg := testutil.TestConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Admin.Enabled = true
	cfg.GRPC.Enabled = true

	srv, err := NewServer(cfg, testutil.TestLogger())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	for _, transport := range []string{"tcp", "grpc", "admin"} {
		if srv.Addr(transport) == nil {
			t.Errorf("no address for %s", transport)
		}
	}

	c := dial(t, srv.Addr("tcp"))
	if resp := c.roundTrip(t, protocol.SetRequest("a", "1")); resp.IsError() {
		t.Fatalf("set failed: %+v", resp)
	}

	adminURL := fmt.Sprintf("http://%s/api/v1/kv/a", srv.Addr("admin"))
	httpResp, err := http.Get(adminURL)
	if err != nil {
		t.Fatalf("GET %s error = %v", adminURL, err)
	}
	var body struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	json.NewDecoder(httpResp.Body).Decode(&body)
	httpResp.Body.Close()
	if !body.Found || body.Value != "1" {
		t.Errorf("admin GET = %+v, want value 1", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	// The engine was closed, so the directory can be reopened and the write
	// is durable.
	store, err := storage.OpenKvStore(cfg.Storage.DataPath, storage.DefaultKvStoreOptions())
	if err != nil {
		t.Fatalf("OpenKvStore() after shutdown error = %v", err)
	}
	defer store.Close()
	testutil.AssertKeyValue(t, store, "a", "1")
}

func TestServer_ListenFailureClosesEngine(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer busy.Close()

	cfg := testutil.TestConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = busy.Addr().(*net.TCPAddr).Port

	srv, err := NewServer(cfg, testutil.TestLogger())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("Run() on a busy port succeeded")
	}

	store, err := storage.OpenKvStore(cfg.Storage.DataPath, storage.DefaultKvStoreOptions())
	if err != nil {
		t.Fatalf("engine still holds the data directory: %v", err)
	}
	store.Close()
}

func TestNewServer_InvalidEngine(t *testing.T) {
	cfg := testutil.TestConfig(t)
	cfg.Storage.Engine = "sled"

	if _, err := NewServer(cfg, testutil.TestLogger()); err == nil {
		t.Error("NewServer() with an unknown engine succeeded")
	}
}

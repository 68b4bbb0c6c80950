package testutil

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"kvs/internal/storage"
)

func TestTestStorageEngine(t *testing.T) {
	engine := TestStorageEngine(t)

	if err := engine.Set("test-key", "test-value"); err != nil {
		t.Fatalf("Failed to set data: %v", err)
	}
	AssertKeyValue(t, engine, "test-key", "test-value")
	AssertKeyNotFound(t, engine, "other")
}

func TestMemoryEngine(t *testing.T) {
	engine := NewMemoryEngine()

	data := PopulateTestData(t, engine, 10)
	if engine.Len() != len(data) {
		t.Errorf("Len() = %d, want %d", engine.Len(), len(data))
	}
	for key, value := range data {
		AssertKeyValue(t, engine, key, value)
	}

	if err := engine.Remove("test-key-0"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	AssertKeyNotFound(t, engine, "test-key-0")

	if err := engine.Remove("test-key-0"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("Remove() of absent key error = %v, want %v", err, storage.ErrKeyNotFound)
	}
}

func TestMemoryEngine_FailWith(t *testing.T) {
	failure := errors.New("injected")
	engine := NewMemoryEngine()
	engine.FailWith = failure

	if err := engine.Set("a", "1"); err != failure {
		t.Errorf("Set() error = %v, want %v", err, failure)
	}
	if _, err := engine.Get("a"); err != failure {
		t.Errorf("Get() error = %v, want %v", err, failure)
	}
	if err := engine.Remove("a"); err != failure {
		t.Errorf("Remove() error = %v, want %v", err, failure)
	}
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig(t)

	if cfg.Server.Port != 0 {
		t.Error("Expected test config to use port 0")
	}
	if cfg.Storage.DataPath == "" {
		t.Error("Expected test config to use a temporary data path")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestTestLogger(t *testing.T) {
	logger := TestLogger()

	if logger == nil {
		t.Fatal("Expected logger to be created")
	}

	logger.InfoContext(context.Background(), "test message")
}

func TestMockHTTPRequest(t *testing.T) {
	req := MockHTTPRequest(http.MethodPut, "/api/v1/kv/a", `{"value":"1"}`)

	if req.Method != http.MethodPut {
		t.Errorf("Method = %s, want PUT", req.Method)
	}
	if req.Body == nil {
		t.Error("Expected request body")
	}
}

func TestWaitForCondition(t *testing.T) {
	var ready atomic.Bool
	go func() {
		time.Sleep(10 * time.Millisecond)
		ready.Store(true)
	}()

	WaitForCondition(t, ready.Load, time.Second, time.Millisecond)
}

func TestAssertContents(t *testing.T) {
	engine := NewMemoryEngine()
	want := PopulateTestData(t, engine, 3)

	AssertContents(t, engine, want, "missing", "test-key-3")
}

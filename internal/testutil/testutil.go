// Package testutil holds fixtures shared by the kvs test suites.
package testutil

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"kvs/internal/config"
	"kvs/internal/logging"
	"kvs/internal/storage"
)

// TestStorageEngine opens a log-structured store in a fresh temporary
// directory and closes it when the test ends.
func TestStorageEngine(t testing.TB) *storage.KvStore {
	t.Helper()

	opts := storage.DefaultKvStoreOptions()
	opts.Logger = TestLogger()

	store, err := storage.OpenKvStore(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("OpenKvStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestConfig returns a configuration with OS-assigned ports and a temporary
// data directory.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.Port = 0
	cfg.Server.Workers = 4
	cfg.Storage.DataPath = t.TempDir()
	cfg.Admin.Port = 0
	cfg.GRPC.Port = 0
	cfg.Logging = logging.TestLoggingConfig()
	return cfg
}

func TestLogger() *logging.Logger {
	cfg := logging.TestLoggingConfig()
	return logging.NewLogger(&cfg)
}

// PopulateTestData stores test-key-i => test-value-i for i < count and
// returns what was written.
func PopulateTestData(t *testing.T, engine storage.StorageEngine, count int) map[string]string {
	t.Helper()

	data := make(map[string]string, count)
	for i := 0; i < count; i++ {
		key, value := fmt.Sprintf("test-key-%d", i), fmt.Sprintf("test-value-%d", i)
		if err := engine.Set(key, value); err != nil {
			t.Fatalf("Set(%q) error = %v", key, err)
		}
		data[key] = value
	}
	return data
}

func AssertKeyValue(t *testing.T, engine storage.StorageEngine, key, want string) {
	t.Helper()

	got, err := engine.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) error = %v", key, err)
	}
	if got != want {
		t.Errorf("Get(%q) = %q, want %q", key, got, want)
	}
}

func AssertKeyNotFound(t *testing.T, engine storage.StorageEngine, key string) {
	t.Helper()

	if v, err := engine.Get(key); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("Get(%q) = %q, %v, want ErrKeyNotFound", key, v, err)
	}
}

// AssertContents checks every key in want and each key in absent. Failures
// are reported in key order.
func AssertContents(t *testing.T, engine storage.StorageEngine, want map[string]string, absent ...string) {
	t.Helper()

	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		AssertKeyValue(t, engine, k, want[k])
	}
	for _, k := range absent {
		AssertKeyNotFound(t, engine, k)
	}
}

func AssertHTTPStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()

	if recorder.Code != want {
		t.Errorf("HTTP status = %d, want %d: %s", recorder.Code, want, recorder.Body.String())
	}
}

func AssertContains(t *testing.T, s, substr string) {
	t.Helper()

	if !strings.Contains(s, substr) {
		t.Errorf("%q does not contain %q", s, substr)
	}
}

// MockHTTPRequest builds a server-side request; an empty body means none.
func MockHTTPRequest(method, url, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, url, nil)
	}
	return httptest.NewRequest(method, url, strings.NewReader(body))
}

// WaitForCondition polls condition every interval and fails the test if it
// is still false after timeout.
func WaitForCondition(t *testing.T, condition func() bool, timeout, interval time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(interval)
	}
}

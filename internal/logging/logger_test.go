package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kvs/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config config.LoggingConfig
	}{
		{"development config", DevelopmentLoggingConfig()},
		{"production config", ProductionLoggingConfig()},
		{"test config", TestLoggingConfig()},
		{"unknown level and format", config.LoggingConfig{Level: "verbose", Format: "xml", Output: "stdout"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(&tt.config)
			if logger == nil {
				t.Fatal("Expected logger to be created")
			}

			logger.Info("Test log message", "test", true)
			logger.Debug("Debug message", "debug", true)
			logger.Warn("Warning message", "warning", true)
			logger.Error("Error message", "error", "test error")
		})
	}
}

func TestLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvs.log")
	logger := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: path})

	logger.Component("test").Info("written to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"component":"test"`) {
		t.Errorf("Expected log file to contain the field, got %s", data)
	}
}

func TestLoggerWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx.log")
	logger := NewLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: path})

	ctx := ContextWithConnectionID(context.Background(), "conn_test")
	logger.WithContext(ctx).Info("Test with context")
	logger.ConnectionEvent(ctx, "accepted", "127.0.0.1:5555", map[string]interface{}{"workers": 4})
	logger.EngineOp(ctx, "set", "test-key", 5*time.Millisecond, nil)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if strings.Count(string(data), `"conn_id":"conn_test"`) != 3 {
		t.Errorf("Expected every line to carry the connection id, got %s", data)
	}
}

func TestLoggerFields(t *testing.T) {
	logger := NopLogger()

	logger.Component("test").Info("Test with field")
	logger.WithFields(map[string]interface{}{
		"component": "test",
		"version":   "1.0.0",
	}).Info("Test with fields")
	logger.WithError(&testError{message: "test error"}).Error("Test with error")
}

func TestConnectionIDs(t *testing.T) {
	id1 := NewConnectionID()
	id2 := NewConnectionID()

	if id1 == id2 {
		t.Error("Expected different connection IDs")
	}
	ctx := ContextWithConnectionID(context.Background(), id1)
	if got := ConnectionIDFromContext(ctx); got != id1 {
		t.Errorf("ConnectionIDFromContext() = %q, want %q", got, id1)
	}
	if got := ConnectionIDFromContext(context.Background()); got != "" {
		t.Errorf("ConnectionIDFromContext(empty) = %q", got)
	}
	if !strings.HasPrefix(id1, "conn_") {
		t.Errorf("Expected conn_ prefix, got %s", id1)
	}
}

func TestMiddleware(t *testing.T) {
	logger := NopLogger()
	var seen string

	handler := CorrelationIDMiddleware(logger)(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ExtractCorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "cor_abc\n123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "cor_abc123" {
		t.Errorf("Expected sanitized correlation id, got %q", seen)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a request id header")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected status %d, got %d", http.StatusTeapot, rec.Code)
	}
}

func TestCorrelationIDSanitization(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal ID", "cor_abc123", "cor_abc123"},
		{"ID with newlines", "cor_abc\n123", "cor_abc123"},
		{"ID with carriage returns", "cor_abc\r123", "cor_abc123"},
		{"ID with tabs", "cor_abc\t123", "cor_abc123"},
		{"ID with escape", "cor_abc\x1b[31m123", "cor_abc[31m123"},
		{"very long ID", "cor_" + strings.Repeat("x", 100), "cor_" + strings.Repeat("x", 60)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeCorrelationID(tt.input)
			if result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

type testError struct {
	message string
}

func (e *testError) Error() string {
	return e.message
}

func TestSetupEnvironmentLogging(t *testing.T) {
	tests := []struct {
		env        string
		wantLevel  string
		wantFormat string
	}{
		{"dev", "debug", "console"},
		{"production", "info", "json"},
		{"test", "error", "json"},
		{"", "warn", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Logging = config.LoggingConfig{Level: "warn", Format: "text"}

			SetupEnvironmentLogging(cfg, tt.env)
			if cfg.Logging.Level != tt.wantLevel || cfg.Logging.Format != tt.wantFormat {
				t.Errorf("Logging = %+v, want level %s format %s", cfg.Logging, tt.wantLevel, tt.wantFormat)
			}
		})
	}
}

func TestEngineOp_TruncatesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.log")
	logger := NewLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: path})

	longKey := strings.Repeat("k", 200)
	logger.EngineOp(context.Background(), "get", longKey, time.Millisecond, &testError{message: "key not found"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if strings.Contains(string(data), longKey) {
		t.Error("Expected the key to be truncated")
	}
	if !strings.Contains(string(data), `"key":"`+strings.Repeat("k", 64)+`..."`) {
		t.Errorf("Expected a 64-byte key prefix, got %s", data)
	}
}

func TestEngineOp_SkippedAboveDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiet.log")
	logger := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: path})

	logger.EngineOp(context.Background(), "set", "k", time.Millisecond, nil)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected no output at info level, got %s", data)
	}
}

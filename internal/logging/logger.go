// Package logging wraps log/slog with the fields kvs components attach to
// every line: component, connection id, correlation id.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"kvs/internal/config"
)

type Logger struct {
	*slog.Logger
	config *config.LoggingConfig
}

type ContextKey string

const (
	CorrelationIDKey ContextKey = "correlation_id"
	RequestIDKey     ContextKey = "request_id"
	ConnectionIDKey  ContextKey = "conn_id"
	ServiceKey       ContextKey = "service"
)

var contextKeys = []ContextKey{CorrelationIDKey, RequestIDKey, ConnectionIDKey, ServiceKey}

// maxLoggedKey bounds how much of a user key reaches a log line.
const maxLoggedKey = 64

// NewLogger builds a logger from cfg. An unknown level means info and an
// unknown format means json; an output path that cannot be opened falls back
// to stderr.
func NewLogger(cfg *config.LoggingConfig) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	return &Logger{
		Logger: slog.New(newHandler(cfg.Format, openOutput(cfg.Output), opts)),
		config: cfg,
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutput(output string) io.Writer {
	switch output {
	case "stdout":
		return os.Stdout
	case "stderr", "":
		return os.Stderr
	}

	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		slog.Warn("Failed to open log file, using stderr", "error", err, "file", output)
		return os.Stderr
	}
	return file
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(format) {
	case "text", "console":
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

// NopLogger returns a logger that discards everything.
func NopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
		config: &config.LoggingConfig{},
	}
}

// SetDefault installs l as the process-wide slog default.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

func (l *Logger) with(args ...interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(args...), config: l.config}
}

// Component tags every line with the emitting subsystem.
func (l *Logger) Component(name string) *Logger {
	return l.with("component", name)
}

// WithContext copies the ids stored in ctx onto the logger.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var args []interface{}
	for _, key := range contextKeys {
		if v := ctx.Value(key); v != nil {
			args = append(args, string(key), v)
		}
	}
	if len(args) == 0 {
		return l
	}
	return l.with(args...)
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, 2*len(fields))
	for key, value := range fields {
		args = append(args, key, value)
	}
	return l.with(args...)
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

func (l *Logger) WithError(err error) *Logger {
	return l.with("error", err.Error())
}

// RequestEnd logs one admin HTTP request. 4xx is a warning, 5xx an error.
func (l *Logger) RequestEnd(ctx context.Context, method, path string, statusCode int, duration time.Duration, size int64) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	l.WithContext(ctx).Log(ctx, level, "Request completed",
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", size,
	)
}

// EngineOp logs one engine call at debug level. Keys are truncated.
func (l *Logger) EngineOp(ctx context.Context, op, key string, duration time.Duration, err error) {
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	if len(key) > maxLoggedKey {
		key = key[:maxLoggedKey] + "..."
	}
	logger := l.WithContext(ctx).With(
		"op", op,
		"key", key,
		"duration_us", duration.Microseconds(),
	)
	if err != nil {
		logger.DebugContext(ctx, "Engine operation failed", "error", err.Error())
		return
	}
	logger.DebugContext(ctx, "Engine operation completed")
}

// ConnectionEvent logs the lifecycle of a client connection
func (l *Logger) ConnectionEvent(ctx context.Context, event, remote string, details map[string]interface{}) {
	args := make([]interface{}, 0, 4+2*len(details))
	args = append(args, "event", event, "remote", remote)
	for key, value := range details {
		args = append(args, key, value)
	}

	l.WithContext(ctx).InfoContext(ctx, "Connection event", args...)
}

package logging

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"
	RequestIDHeader     = "X-Request-ID"

	maxCorrelationID = 64
)

// NewConnectionID returns an identifier for one accepted client connection.
func NewConnectionID() string {
	return "conn_" + uuid.NewString()
}

// GenerateRequestID returns an identifier for one admin HTTP request.
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

func ContextWithConnectionID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, ConnectionIDKey, connID)
}

func ConnectionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ConnectionIDKey).(string)
	return id
}

func ExtractCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(CorrelationIDKey).(string)
	return id
}

// SanitizeCorrelationID drops control characters from a client-supplied id
// and caps its length.
func SanitizeCorrelationID(id string) string {
	id = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, id)
	if len(id) > maxCorrelationID {
		id = id[:maxCorrelationID]
	}
	return id
}

// CorrelationIDMiddleware tags each admin request with a request id and a
// correlation id, reusing the caller's X-Correlation-ID when present.
func CorrelationIDMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GenerateRequestID()
			correlationID := SanitizeCorrelationID(r.Header.Get(CorrelationIDHeader))
			if correlationID == "" {
				correlationID = requestID
			}

			ctx := context.WithValue(r.Context(), CorrelationIDKey, correlationID)
			ctx = context.WithValue(ctx, RequestIDKey, requestID)
			ctx = context.WithValue(ctx, ServiceKey, "kvs-admin")

			w.Header().Set(CorrelationIDHeader, correlationID)
			w.Header().Set(RequestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggingMiddleware logs every admin request once it completes.
func LoggingMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.RequestEnd(r.Context(), r.Method, r.URL.Path, sw.status, time.Since(start), sw.size)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)
	w.size += int64(n)
	return n, err
}

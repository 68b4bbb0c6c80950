package monitoring

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"kvs/internal/pool"
	"kvs/internal/storage"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is the result of a single check.
type HealthCheck struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Duration  time.Duration          `json:"duration_ns"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Critical  bool                   `json:"critical"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus           `json:"status"`
	Version    string                 `json:"version"`
	Uptime     string                 `json:"uptime"`
	Timestamp  time.Time              `json:"timestamp"`
	Checks     map[string]HealthCheck `json:"checks"`
	SystemInfo SystemInfo             `json:"system_info"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	MemoryMB     uint64 `json:"memory_mb"`
}

// HealthChecker interface for implementing health checks
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) HealthCheck
	IsCritical() bool
}

// HealthManager runs registered checkers and folds them into one status.
// Any unhealthy check makes the whole response unhealthy; a degraded check
// degrades an otherwise healthy response.
type HealthManager struct {
	mu          sync.Mutex
	checkers    []HealthChecker
	startTime   time.Time
	version     string
	lastResults map[string]HealthCheck
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		startTime:   time.Now(),
		version:     version,
		lastResults: make(map[string]HealthCheck),
	}
}

func (hm *HealthManager) RegisterChecker(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers = append(hm.checkers, checker)
}

func (hm *HealthManager) CheckHealth(ctx context.Context) HealthResponse {
	hm.mu.Lock()
	checkers := append([]HealthChecker(nil), hm.checkers...)
	hm.mu.Unlock()

	checks := make(map[string]HealthCheck, len(checkers))
	overall := HealthStatusHealthy

	for _, checker := range checkers {
		start := time.Now()
		check := checker.Check(ctx)
		check.Name = checker.Name()
		check.Duration = time.Since(start)
		check.Timestamp = time.Now()
		check.Critical = checker.IsCritical()
		checks[check.Name] = check

		switch check.Status {
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		case HealthStatusUnhealthy:
			if check.Critical {
				overall = HealthStatusUnhealthy
			} else if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}

	hm.mu.Lock()
	for name, check := range checks {
		hm.lastResults[name] = check
	}
	hm.mu.Unlock()

	return HealthResponse{
		Status:     overall,
		Version:    hm.version,
		Uptime:     time.Since(hm.startTime).Round(time.Second).String(),
		Timestamp:  time.Now(),
		Checks:     checks,
		SystemInfo: systemInfo(),
	}
}

// GetLastResults returns a copy of the most recent result of every check.
func (hm *HealthManager) GetLastResults() map[string]HealthCheck {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	out := make(map[string]HealthCheck, len(hm.lastResults))
	for name, check := range hm.lastResults {
		out[name] = check
	}
	return out
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		MemoryMB:     m.Alloc / 1024 / 1024,
	}
}

// healthCheckKey is read, never written, so checks leave the log untouched.
const healthCheckKey = "__health_check__"

// StorageHealthChecker checks the engine with a read. A missing key is the
// expected answer; any other failure marks storage unhealthy.
type StorageHealthChecker struct {
	engine storage.StorageEngine
}

func NewStorageHealthChecker(engine storage.StorageEngine) *StorageHealthChecker {
	return &StorageHealthChecker{engine: engine}
}

func (s *StorageHealthChecker) Name() string     { return "storage" }
func (s *StorageHealthChecker) IsCritical() bool { return true }

func (s *StorageHealthChecker) Check(ctx context.Context) HealthCheck {
	_, err := s.engine.Get(healthCheckKey)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return HealthCheck{
			Status:  HealthStatusUnhealthy,
			Message: fmt.Sprintf("Storage read failed: %v", err),
			Details: map[string]interface{}{
				"kind":  storage.KindOf(err).String(),
				"error": err.Error(),
			},
		}
	}

	check := HealthCheck{Status: HealthStatusHealthy, Message: "Storage is operational"}
	if sp, ok := s.engine.(storage.StatsProvider); ok {
		check.Details = sp.Stats()
	}
	return check
}

// PoolHealthChecker reports a pool as degraded when it runs fewer workers
// than it was sized for.
type PoolHealthChecker struct {
	pool     pool.ThreadPool
	expected int
}

// NewPoolHealthChecker checks p against expected workers; expected 0 skips
// the capacity comparison.
func NewPoolHealthChecker(p pool.ThreadPool, expected int) *PoolHealthChecker {
	return &PoolHealthChecker{pool: p, expected: expected}
}

func (p *PoolHealthChecker) Name() string     { return "pool" }
func (p *PoolHealthChecker) IsCritical() bool { return false }

func (p *PoolHealthChecker) Check(ctx context.Context) HealthCheck {
	stats := p.pool.Stats()
	details := map[string]interface{}{
		"workers":   stats.Workers,
		"queued":    stats.Queued,
		"completed": stats.Completed,
		"panics":    stats.Panics,
	}

	if p.expected > 0 && stats.Workers < p.expected {
		return HealthCheck{
			Status:  HealthStatusDegraded,
			Message: fmt.Sprintf("%d of %d workers running", stats.Workers, p.expected),
			Details: details,
		}
	}
	return HealthCheck{Status: HealthStatusHealthy, Message: "Pool is running", Details: details}
}

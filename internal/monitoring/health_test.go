package monitoring

import (
	"context"
	"errors"
	"testing"

	"kvs/internal/pool"
	"kvs/internal/storage"
)

type stubEngine struct {
	err error
}

func (s stubEngine) Set(key, value string) error    { return s.err }
func (s stubEngine) Get(key string) (string, error) { return "", s.err }
func (s stubEngine) Remove(key string) error        { return s.err }

func TestStorageHealthChecker(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want HealthStatus
	}{
		{"check key absent", storage.ErrKeyNotFound, HealthStatusHealthy},
		{"check key present", nil, HealthStatusHealthy},
		{"backend failure", storage.BackendError("redis", errors.New("connection refused")), HealthStatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewStorageHealthChecker(stubEngine{err: tt.err}).Check(context.Background())
			if check.Status != tt.want {
				t.Errorf("Status = %s, want %s (%s)", check.Status, tt.want, check.Message)
			}
		})
	}
}

func TestHealthManager(t *testing.T) {
	p, err := pool.NewSharedQueuePool(2, nil)
	if err != nil {
		t.Fatalf("NewSharedQueuePool() error = %v", err)
	}
	defer p.Close()

	hm := NewHealthManager("test")
	hm.RegisterChecker(NewStorageHealthChecker(stubEngine{err: storage.ErrKeyNotFound}))
	hm.RegisterChecker(NewPoolHealthChecker(p, 2))

	resp := hm.CheckHealth(context.Background())
	if resp.Status != HealthStatusHealthy {
		t.Errorf("Status = %s, want healthy: %+v", resp.Status, resp.Checks)
	}
	if len(resp.Checks) != 2 || len(hm.GetLastResults()) != 2 {
		t.Errorf("expected 2 checks, got %d", len(resp.Checks))
	}
	if !resp.Checks["storage"].Critical {
		t.Error("storage check should be critical")
	}
}

func TestHealthManager_Aggregation(t *testing.T) {
	p, err := pool.NewSharedQueuePool(1, nil)
	if err != nil {
		t.Fatalf("NewSharedQueuePool() error = %v", err)
	}
	defer p.Close()

	degraded := NewHealthManager("test")
	degraded.RegisterChecker(NewStorageHealthChecker(stubEngine{}))
	degraded.RegisterChecker(NewPoolHealthChecker(p, 8))
	if got := degraded.CheckHealth(context.Background()).Status; got != HealthStatusDegraded {
		t.Errorf("undersized pool: Status = %s, want degraded", got)
	}

	unhealthy := NewHealthManager("test")
	unhealthy.RegisterChecker(NewStorageHealthChecker(stubEngine{err: errors.New("disk gone")}))
	unhealthy.RegisterChecker(NewPoolHealthChecker(p, 1))
	if got := unhealthy.CheckHealth(context.Background()).Status; got != HealthStatusUnhealthy {
		t.Errorf("storage failure: Status = %s, want unhealthy", got)
	}
}

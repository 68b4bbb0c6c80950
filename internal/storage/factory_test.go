package storage

import (
	"os"
	"testing"

	"github.com/google/uuid"

	"kvs/internal/config"
)

func TestNewStorageEngine(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{
			name: "log engine",
			cfg:  config.StorageConfig{Engine: "kvs", CompactionThreshold: 1024},
		},
		{
			name: "default engine",
			cfg:  config.StorageConfig{},
		},
		{
			name: "in-memory badger",
			cfg: config.StorageConfig{
				Engine: "badger",
				Badger: config.BadgerConfig{InMemory: true},
			},
		},
		{
			name:    "unknown engine",
			cfg:     config.StorageConfig{Engine: "sled"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.DataPath = t.TempDir()

			engine, err := NewStorageEngine(cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStorageEngine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if engine != nil {
					t.Error("NewStorageEngine() returned a non-nil engine on error")
				}
				return
			}
			defer engine.Close()

			if err := engine.Set("k", "v"); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			assertValue(t, engine, "k", "v")
		})
	}
}

func TestNewStorageEngine_FailedOpenReturnsNilEngine(t *testing.T) {
	dir := t.TempDir()
	first, err := NewStorageEngine(config.StorageConfig{Engine: "kvs", DataPath: dir}, nil)
	if err != nil {
		t.Fatalf("NewStorageEngine() error = %v", err)
	}
	defer first.Close()

	engine, err := NewStorageEngine(config.StorageConfig{Engine: "kvs", DataPath: dir}, nil)
	if err == nil {
		t.Fatal("second engine on a locked directory should fail")
	}
	if engine != nil {
		t.Errorf("engine = %v, want nil interface", engine)
	}
}

func TestNewStorageEngine_RedisCache(t *testing.T) {
	setupRedisEngine(t) // skips without a server

	addr := os.Getenv("KV_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	engine, err := NewStorageEngine(config.StorageConfig{
		Engine: "redis",
		Redis: config.RedisConfig{
			Addr:      addr,
			KeyPrefix: "kvs-test:" + uuid.NewString() + ":",
			CacheSize: 16,
		},
	}, nil)
	if err != nil {
		t.Fatalf("NewStorageEngine() error = %v", err)
	}
	defer engine.Close()

	if _, ok := engine.(*CachedEngine); !ok {
		t.Fatalf("engine = %T, want *CachedEngine", engine)
	}
	if err := engine.Set("k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	assertValue(t, engine, "k", "v")
}

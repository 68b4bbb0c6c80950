package storage

import (
	"fmt"
	"io"

	"kvs/internal/config"
	"kvs/internal/logging"
)

// Engine is a StorageEngine that owns resources released by Close.
type Engine interface {
	StorageEngine
	io.Closer
}

// NewStorageEngine opens the backend named by cfg.Engine.
func NewStorageEngine(cfg config.StorageConfig, logger *logging.Logger) (Engine, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	var (
		engine Engine
		err    error
	)

	switch cfg.Engine {
	case "kvs", "":
		engine, err = openKvStore(cfg.DataPath, KvStoreOptions{
			CompactionThreshold: cfg.CompactionThreshold,
			SyncWrites:          cfg.SyncWrites,
			LogReads:            cfg.LogReads,
			Logger:              logger,
		})
	case "badger":
		engine, err = newBadgerEngine(BadgerConfig{
			DataPath:   cfg.DataPath,
			InMemory:   cfg.Badger.InMemory,
			SyncWrites: cfg.SyncWrites,
			ValueLogGC: cfg.Badger.ValueLogGC,
			GCInterval: cfg.Badger.GCInterval,
		}, logger)
	case "redis":
		engine, err = newRedisEngine(RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Timeout:   cfg.Redis.Timeout,
		})
		if err == nil && cfg.Redis.CacheSize > 0 {
			engine = NewCachedEngine(engine, cfg.Redis.CacheSize, cfg.Redis.CacheTTL)
		}
	default:
		return nil, fmt.Errorf("unknown storage engine: %s", cfg.Engine)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Storage engine opened", "engine", cfg.Engine, "data_path", cfg.DataPath)
	return engine, nil
}

// The wrappers below keep a nil concrete pointer from becoming a non-nil
// Engine on error.

func openKvStore(dir string, opts KvStoreOptions) (Engine, error) {
	s, err := OpenKvStore(dir, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newBadgerEngine(config BadgerConfig, logger *logging.Logger) (Engine, error) {
	e, err := NewBadgerEngine(config, logger)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func newRedisEngine(config RedisConfig) (Engine, error) {
	e, err := NewRedisEngine(config)
	if err != nil {
		return nil, err
	}
	return e, nil
}

package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"kvs/internal/logging"
)

// BadgerConfig configures the badger adapter.
type BadgerConfig struct {
	DataPath   string
	InMemory   bool
	SyncWrites bool
	ValueLogGC bool
	GCInterval time.Duration
}

// BadgerEngine adapts an embedded badger database to StorageEngine.
type BadgerEngine struct {
	db     *badger.DB
	logger *logging.Logger

	stopGC    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

var (
	_ StorageEngine = (*BadgerEngine)(nil)
	_ Compactor     = (*BadgerEngine)(nil)
	_ StatsProvider = (*BadgerEngine)(nil)
)

func NewBadgerEngine(config BadgerConfig, logger *logging.Logger) (*BadgerEngine, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	opts := badger.DefaultOptions(config.DataPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(config.SyncWrites)
	opts = opts.WithLogger(nil) // Disable badger's default logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, BackendError("badger", fmt.Errorf("failed to open badger database: %w", err))
	}

	engine := &BadgerEngine{
		db:     db,
		logger: logger.Component("badger"),
		stopGC: make(chan struct{}),
	}

	if config.ValueLogGC && !config.InMemory && config.GCInterval > 0 {
		engine.wg.Add(1)
		go engine.runGC(config.GCInterval)
	}

	return engine, nil
}

func (e *BadgerEngine) Set(key, value string) error {
	err := e.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return BackendError("badger", err)
	}
	return nil
}

func (e *BadgerEngine) Get(key string) (string, error) {
	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", BackendError("badger", err)
	}
	return string(value), nil
}

// Remove checks for the key and deletes it inside one transaction so absent
// keys report ErrKeyNotFound like the log engine does.
func (e *BadgerEngine) Remove(key string) error {
	err := e.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		return txn.Delete([]byte(key))
	})

	if errors.Is(err, ErrKeyNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return BackendError("badger", err)
	}
	return nil
}

// Compact runs value log garbage collection until badger reports nothing
// left to rewrite.
func (e *BadgerEngine) Compact() error {
	for {
		err := e.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return BackendError("badger", err)
		}
	}
}

func (e *BadgerEngine) Stats() map[string]interface{} {
	lsmSize, vlogSize := e.db.Size()

	return map[string]interface{}{
		"engine":     "badger",
		"lsm_size":   lsmSize,
		"vlog_size":  vlogSize,
		"total_size": lsmSize + vlogSize,
	}
}

// Close stops background GC and closes the database. Later calls return the
// first call's result.
func (e *BadgerEngine) Close() error {
	e.closeOnce.Do(func() {
		close(e.stopGC)
		e.wg.Wait()

		if err := e.db.Close(); err != nil {
			e.closeErr = BackendError("badger", err)
		}
	})
	return e.closeErr
}

func (e *BadgerEngine) runGC(interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.Compact(); err != nil {
				e.logger.Warn("BadgerDB garbage collection failed", "error", err.Error())
				continue
			}
			e.logger.Debug("BadgerDB garbage collection completed")
		case <-e.stopGC:
			return
		}
	}
}

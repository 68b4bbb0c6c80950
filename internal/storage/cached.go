package storage

import (
	"io"
	"sync"
	"time"

	"kvs/internal/cache"
)

// CachedEngine serves reads from an LRU in front of a slower engine. Writes
// go to the engine first and then update the cache.
type CachedEngine struct {
	// mu orders writes against read-fills so a fill never caches a value
	// older than a completed write.
	mu    sync.RWMutex
	inner StorageEngine
	lru   *cache.LRU
}

var (
	_ StorageEngine = (*CachedEngine)(nil)
	_ StatsProvider = (*CachedEngine)(nil)
)

func NewCachedEngine(inner StorageEngine, size int, ttl time.Duration) *CachedEngine {
	return &CachedEngine{inner: inner, lru: cache.New(size, ttl)}
}

func (e *CachedEngine) Set(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.inner.Set(key, value); err != nil {
		e.lru.Delete(key)
		return err
	}
	e.lru.Put(key, value)
	return nil
}

func (e *CachedEngine) Get(key string) (string, error) {
	if v, ok := e.lru.Get(key); ok {
		return v, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.inner.Get(key)
	if err != nil {
		return "", err
	}
	e.lru.Put(key, v)
	return v, nil
}

func (e *CachedEngine) Remove(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lru.Delete(key)
	return e.inner.Remove(key)
}

// Stats reports cache counters merged over the wrapped engine's stats.
func (e *CachedEngine) Stats() map[string]interface{} {
	stats := map[string]interface{}{}
	if sp, ok := e.inner.(StatsProvider); ok {
		for k, v := range sp.Stats() {
			stats[k] = v
		}
	}
	cs := e.lru.Stats()
	stats["cache_hits"] = cs.Hits
	stats["cache_misses"] = cs.Misses
	stats["cache_evictions"] = cs.Evictions
	stats["cache_size"] = cs.Size
	return stats
}

func (e *CachedEngine) Close() error {
	e.lru.Purge()
	if c, ok := e.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Unwrap returns the wrapped engine.
func (e *CachedEngine) Unwrap() StorageEngine {
	return e.inner
}

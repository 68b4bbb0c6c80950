package storage

import (
	"errors"
	"sync"
	"testing"
)

// countingEngine is a map engine that counts reads reaching it.
type countingEngine struct {
	mu     sync.Mutex
	data   map[string]string
	gets   int
	fail   error
	closed bool
}

func newCountingEngine() *countingEngine {
	return &countingEngine{data: make(map[string]string)}
}

func (e *countingEngine) Set(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.data[key] = value
	return nil
}

func (e *countingEngine) Get(key string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gets++
	v, ok := e.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (e *countingEngine) Remove(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.data[key]; !ok {
		return ErrKeyNotFound
	}
	delete(e.data, key)
	return nil
}

func (e *countingEngine) Close() error {
	e.closed = true
	return nil
}

func TestCachedEngine_ReadsHitCache(t *testing.T) {
	inner := newCountingEngine()
	e := NewCachedEngine(inner, 10, 0)

	inner.Set("a", "1")
	for i := 0; i < 3; i++ {
		if v, err := e.Get("a"); err != nil || v != "1" {
			t.Fatalf("Get() = %q, %v, want 1", v, err)
		}
	}
	if inner.gets != 1 {
		t.Errorf("inner gets = %d, want 1", inner.gets)
	}

	stats := e.Stats()
	if stats["cache_hits"] != uint64(2) || stats["cache_misses"] != uint64(1) {
		t.Errorf("Stats() = %v", stats)
	}
}

func TestCachedEngine_WritesInvalidate(t *testing.T) {
	inner := newCountingEngine()
	e := NewCachedEngine(inner, 10, 0)

	if err := e.Set("a", "1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := e.Set("a", "2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, _ := e.Get("a"); v != "2" {
		t.Errorf("Get() = %q, want 2", v)
	}
	if inner.gets != 0 {
		t.Errorf("write-through value not cached: inner gets = %d", inner.gets)
	}

	if err := e.Remove("a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := e.Get("a"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrKeyNotFound", err)
	}
	if err := e.Remove("a"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Remove(missing) error = %v, want ErrKeyNotFound", err)
	}
}

func TestCachedEngine_FailedSetDropsEntry(t *testing.T) {
	inner := newCountingEngine()
	e := NewCachedEngine(inner, 10, 0)

	e.Set("a", "1")
	inner.fail = BackendError("redis", errors.New("timeout"))
	if err := e.Set("a", "2"); KindOf(err) != KindBackend {
		t.Fatalf("Set() error = %v, want backend", err)
	}
	inner.fail = nil

	if v, err := e.Get("a"); err != nil || v != "1" {
		t.Errorf("Get() = %q, %v, want the stored value 1", v, err)
	}
	if inner.gets != 1 {
		t.Errorf("inner gets = %d, want 1 after failed write", inner.gets)
	}
}

func TestCachedEngine_Close(t *testing.T) {
	inner := newCountingEngine()
	e := NewCachedEngine(inner, 10, 0)
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !inner.closed {
		t.Error("inner engine not closed")
	}
	if e.Unwrap() != StorageEngine(inner) {
		t.Error("Unwrap() returned a different engine")
	}
}

package testutil

import (
	"sync"

	"kvs/internal/storage"
)

// MemoryEngine is a non-persistent StorageEngine for tests that exercise
// callers of the engine rather than the engine itself.
type MemoryEngine struct {
	mu   sync.RWMutex
	data map[string]string

	// FailWith, when set, is returned by every operation.
	FailWith error
	// OnSet, when set, runs inside Set before the value is stored.
	OnSet func(key, value string)
}

var _ storage.StorageEngine = (*MemoryEngine)(nil)

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{data: make(map[string]string)}
}

func (m *MemoryEngine) Set(key, value string) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	if m.OnSet != nil {
		m.OnSet(key, value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryEngine) Get(key string) (string, error) {
	if m.FailWith != nil {
		return "", m.FailWith
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	if !ok {
		return "", storage.ErrKeyNotFound
	}
	return value, nil
}

func (m *MemoryEngine) Remove(key string) error {
	if m.FailWith != nil {
		return m.FailWith
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return storage.ErrKeyNotFound
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryEngine) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryEngine) Close() error {
	return nil
}

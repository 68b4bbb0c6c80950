package storage

// StorageEngine is the capability every backend provides. Implementations are
// safe for concurrent use by many goroutines and a single value may be shared
// freely; all holders observe the same underlying store.
type StorageEngine interface {
	// Set binds key to value, overwriting any previous value.
	Set(key, value string) error
	// Get returns the value bound to key, or ErrKeyNotFound.
	Get(key string) (string, error)
	// Remove deletes key. It returns ErrKeyNotFound if key is absent.
	Remove(key string) error
}

// Compactor is implemented by engines that can rewrite their storage to drop
// dead data on demand.
type Compactor interface {
	Compact() error
}

// StatsProvider is implemented by engines that report internal statistics.
type StatsProvider interface {
	Stats() map[string]interface{}
}

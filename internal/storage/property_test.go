package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// step is one generated operation against a small key space.
type step struct {
	op    int // 0 set, 1 remove, 2 get
	key   string
	value string
}

func decodeSteps(codes []int) []step {
	steps := make([]step, len(codes))
	for i, code := range codes {
		steps[i] = step{
			op:    code % 3,
			key:   fmt.Sprintf("k%d", (code/3)%6),
			value: fmt.Sprintf("v%d", i),
		}
	}
	return steps
}

// applySteps runs steps against engine and a map model and reports whether
// every result agreed.
func applySteps(engine StorageEngine, model map[string]string, steps []step) bool {
	for _, s := range steps {
		switch s.op {
		case 0:
			if err := engine.Set(s.key, s.value); err != nil {
				return false
			}
			model[s.key] = s.value
		case 1:
			err := engine.Remove(s.key)
			if _, ok := model[s.key]; ok {
				if err != nil {
					return false
				}
				delete(model, s.key)
			} else if !errors.Is(err, ErrKeyNotFound) {
				return false
			}
		case 2:
			if !matchesModel(engine, model, s.key) {
				return false
			}
		}
	}
	return true
}

func matchesModel(engine StorageEngine, model map[string]string, key string) bool {
	got, err := engine.Get(key)
	want, ok := model[key]
	if !ok {
		return errors.Is(err, ErrKeyNotFound)
	}
	return err == nil && got == want
}

func TestKvStoreProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("store agrees with a map model", prop.ForAll(
		func(codes []int) bool {
			store, err := OpenKvStore(t.TempDir(), KvStoreOptions{CompactionThreshold: 256})
			if err != nil {
				return false
			}
			defer store.Close()

			return applySteps(store, map[string]string{}, decodeSteps(codes))
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.Property("reopen restores the pre-close state", prop.ForAll(
		func(codes []int, threshold int64) bool {
			dir := t.TempDir()
			opts := KvStoreOptions{CompactionThreshold: threshold}

			store, err := OpenKvStore(dir, opts)
			if err != nil {
				return false
			}
			model := map[string]string{}
			if !applySteps(store, model, decodeSteps(codes)) {
				store.Close()
				return false
			}
			if err := store.Close(); err != nil {
				return false
			}

			reopened, err := OpenKvStore(dir, opts)
			if err != nil {
				return false
			}
			defer reopened.Close()

			for k := 0; k < 6; k++ {
				if !matchesModel(reopened, model, fmt.Sprintf("k%d", k)) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.Int64Range(64, 4096),
	))

	properties.Property("compaction preserves contents", prop.ForAll(
		func(codes []int) bool {
			store, err := OpenKvStore(t.TempDir(), KvStoreOptions{CompactionThreshold: 1 << 30})
			if err != nil {
				return false
			}
			defer store.Close()

			model := map[string]string{}
			if !applySteps(store, model, decodeSteps(codes)) {
				return false
			}
			if err := store.Compact(); err != nil {
				return false
			}
			if store.Stats()["keys"].(int) != len(model) {
				return false
			}
			for k := 0; k < 6; k++ {
				if !matchesModel(store, model, fmt.Sprintf("k%d", k)) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

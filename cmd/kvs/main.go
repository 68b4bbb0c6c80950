package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"kvs/internal/config"
	"kvs/internal/storage"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kvs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg := config.DefaultConfig().Storage
	dir := fs.String("dir", ".", "Directory holding the store's files")
	engine := fs.String("engine", cfg.Engine, "Storage engine (kvs, badger, redis)")
	redisAddr := fs.String("redis", cfg.Redis.Addr, "Redis address for the redis engine")
	syncWrites := fs.Bool("sync", false, "Fsync every write")
	fs.Usage = func() {
		fmt.Fprint(stderr, `kvs: operate on a local store

Usage:
  kvs [options] set KEY VALUE
  kvs [options] get KEY
  kvs [options] rm KEY
  kvs [options] compact
  kvs [options] stats

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	args = fs.Args()
	want := map[string]int{"set": 3, "get": 2, "rm": 2, "compact": 1, "stats": 1}
	if len(args) == 0 || want[args[0]] != len(args) {
		fs.Usage()
		return 2
	}

	cfg.Engine = *engine
	cfg.DataPath = *dir
	cfg.SyncWrites = *syncWrites
	cfg.Redis.Addr = *redisAddr
	store, err := storage.NewStorageEngine(cfg, nil)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer store.Close()

	switch args[0] {
	case "set":
		err = store.Set(args[1], args[2])
	case "get":
		var value string
		value, err = store.Get(args[1])
		if errors.Is(err, storage.ErrKeyNotFound) {
			fmt.Fprintln(stdout, "Key not found")
			return 0
		}
		if err == nil {
			fmt.Fprintln(stdout, value)
		}
	case "rm":
		err = store.Remove(args[1])
		if errors.Is(err, storage.ErrKeyNotFound) {
			fmt.Fprintln(stdout, "Key not found")
			return 1
		}
	case "compact":
		c, ok := store.(storage.Compactor)
		if !ok {
			fmt.Fprintf(stderr, "compact is not supported by the %s engine\n", cfg.Engine)
			return 1
		}
		err = c.Compact()
	case "stats":
		sp, ok := store.(storage.StatsProvider)
		if !ok {
			fmt.Fprintf(stderr, "stats is not supported by the %s engine\n", cfg.Engine)
			return 1
		}
		stats := sp.Stats()
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(stdout, "%s: %v\n", k, stats[k])
		}
	}

	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

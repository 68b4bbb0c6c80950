package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"kvs/internal/logging"
	"kvs/internal/record"
)

const (
	logFileExt   = ".log"
	tmpFileExt   = ".tmp"
	lockFileName = "LOCK"

	// DefaultCompactionThreshold is the number of dead log bytes tolerated
	// before a write triggers compaction.
	DefaultCompactionThreshold int64 = 1024 * 1024
)

// KvStoreOptions tunes a KvStore.
type KvStoreOptions struct {
	CompactionThreshold int64
	SyncWrites          bool
	// LogReads appends an audit record for every Get.
	LogReads bool
	Logger   *logging.Logger
}

// DefaultKvStoreOptions returns options with a 1MB compaction threshold.
func DefaultKvStoreOptions() KvStoreOptions {
	return KvStoreOptions{CompactionThreshold: DefaultCompactionThreshold}
}

// logWriter is the append side of the active generation.
type logWriter interface {
	io.Writer
	Truncate(size int64) error
	Sync() error
	Close() error
}

// indexEntry locates the latest live Set record of a key.
type indexEntry struct {
	gen    uint64
	offset int64
	length int64
}

// KvStore is a log-structured store. Every mutation is appended to the active
// log generation in dir before the in-memory index is updated; the index is
// rebuilt by replaying the log on open.
//
// A single *KvStore is safe for concurrent use. Reads share mu; appends,
// index updates and compaction hold it exclusively.
type KvStore struct {
	mu sync.RWMutex

	dir    string
	opts   KvStoreOptions
	logger *logging.Logger
	lock   *os.File

	gen    uint64
	writer logWriter // O_APPEND handle on the active generation
	reader *os.File // positional reads via ReadAt

	index         map[string]indexEntry
	currentOffset int64
	uncompacted   int64
	compactions   uint64
	closed        bool
}

var (
	_ StorageEngine = (*KvStore)(nil)
	_ Compactor     = (*KvStore)(nil)
	_ StatsProvider = (*KvStore)(nil)
)

// OpenKvStore opens the store in dir, creating the directory and an empty log
// if needed, and rebuilds the index from the newest log generation.
func OpenKvStore(dir string, opts KvStoreOptions) (*KvStore, error) {
	if opts.CompactionThreshold <= 0 {
		opts.CompactionThreshold = DefaultCompactionThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ioError("create data directory", err)
	}

	lock, err := lockDirectory(dir)
	if err != nil {
		return nil, ioError("lock data directory", err)
	}

	s := &KvStore{
		dir:    dir,
		opts:   opts,
		logger: logger.Component("kvstore").WithField("dir", dir),
		lock:   lock,
		index:  make(map[string]indexEntry),
	}

	if err := s.load(); err != nil {
		s.closeFiles()
		unlockDirectory(lock)
		return nil, err
	}

	if s.uncompacted > s.opts.CompactionThreshold {
		if err := s.compactLocked(); err != nil {
			s.logger.Warn("Compaction at open failed, continuing with existing log", "error", err.Error())
		}
	}

	s.logger.Info("Store opened",
		"generation", s.gen,
		"keys", len(s.index),
		"log_size", humanize.Bytes(uint64(s.currentOffset)),
		"uncompacted", humanize.Bytes(uint64(s.uncompacted)),
	)

	return s, nil
}

// load picks the newest generation, removes leftovers from earlier
// compactions, opens the active log and replays it.
func (s *KvStore) load() error {
	gens, err := s.scanGenerations()
	if err != nil {
		return err
	}

	s.gen = 1
	if len(gens) > 0 {
		s.gen = gens[len(gens)-1]
		for _, old := range gens[:len(gens)-1] {
			if err := os.Remove(s.logPath(old)); err != nil {
				s.logger.Warn("Failed to remove stale log generation", "generation", old, "error", err.Error())
			}
		}
	}

	path := s.logPath(s.gen)
	writer, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return ioError("open log", err)
	}
	s.writer = writer
	s.reader, err = os.Open(path)
	if err != nil {
		return ioError("open log", err)
	}

	return s.replay()
}

// scanGenerations lists log generations in ascending order and deletes any
// temporary files left by an interrupted compaction.
func (s *KvStore) scanGenerations() ([]uint64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, ioError("scan data directory", err)
	}

	var gens []uint64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(name, tmpFileExt) {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
				s.logger.Warn("Failed to remove interrupted compaction output", "file", name, "error", err.Error())
			}
			continue
		}
		if !strings.HasSuffix(name, logFileExt) {
			continue
		}
		gen, err := strconv.ParseUint(strings.TrimSuffix(name, logFileExt), 10, 64)
		if err != nil {
			continue
		}
		gens = append(gens, gen)
	}

	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}

// replay rebuilds the index from offset 0. A final line without its
// delimiter is a torn append and is truncated away.
func (s *KvStore) replay() error {
	r := bufio.NewReader(io.NewSectionReader(s.reader, 0, 1<<62))

	var offset int64
	for {
		line, err := r.ReadBytes(record.Delimiter)
		if err == io.EOF {
			if len(line) > 0 {
				s.logger.Warn("Truncating incomplete record at end of log", "offset", offset, "bytes", len(line))
				if err := s.writer.Truncate(offset); err != nil {
					return ioError("truncate torn record", err)
				}
			}
			break
		}
		if err != nil {
			return ioError("replay log", err)
		}

		rec, err := record.Decode(line)
		if err != nil {
			return corruptionError("replay log", fmt.Errorf("record at offset %d: %w", offset, err))
		}

		length := int64(len(line))
		s.apply(rec, offset, length)
		offset += length
	}

	s.currentOffset = offset
	return nil
}

// apply updates the index and dead-byte accounting for one record located at
// offset in the active generation.
func (s *KvStore) apply(rec record.Record, offset, length int64) {
	switch rec.Op {
	case record.OpSet:
		if old, ok := s.index[rec.Key]; ok {
			s.uncompacted += old.length
		}
		s.index[rec.Key] = indexEntry{gen: s.gen, offset: offset, length: length}
	case record.OpRemove:
		if old, ok := s.index[rec.Key]; ok {
			s.uncompacted += old.length
			delete(s.index, rec.Key)
		}
		// The tombstone is dead too; compaction drops it with the value.
		s.uncompacted += length
	case record.OpGet:
		s.uncompacted += length
	}
}

// Get returns the value of key or ErrKeyNotFound.
func (s *KvStore) Get(key string) (string, error) {
	if s.opts.LogReads {
		return s.getLogged(key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrClosed
	}
	return s.readLocked(key)
}

func (s *KvStore) getLogged(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	if _, err := s.appendLocked(record.Get(key)); err != nil {
		return "", err
	}
	value, err := s.readLocked(key)
	s.maybeCompactLocked()
	return value, err
}

func (s *KvStore) readLocked(key string) (string, error) {
	entry, ok := s.index[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	if entry.gen != s.gen {
		return "", corruptionError("get", fmt.Errorf("index points at generation %d, active is %d", entry.gen, s.gen))
	}

	buf := make([]byte, entry.length)
	if _, err := s.reader.ReadAt(buf, entry.offset); err != nil {
		return "", ioError("get", err)
	}

	rec, err := record.Decode(buf)
	if err != nil {
		return "", corruptionError("get", err)
	}
	if rec.Op != record.OpSet || rec.Key != key {
		return "", corruptionError("get", fmt.Errorf("index for %q points at a %s record for %q", key, rec.Op, rec.Key))
	}
	return rec.Value, nil
}

// Set appends a Set record and then points the index at it.
func (s *KvStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	offset, length, err := s.appendRecord(record.Set(key, value))
	if err != nil {
		return err
	}
	s.apply(record.Set(key, value), offset, length)
	s.maybeCompactLocked()
	return nil
}

// Remove appends a Remove record for an existing key. Absent keys fail with
// ErrKeyNotFound and leave the log untouched.
func (s *KvStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.index[key]; !ok {
		return ErrKeyNotFound
	}

	offset, length, err := s.appendRecord(record.Remove(key))
	if err != nil {
		return err
	}
	s.apply(record.Remove(key), offset, length)
	s.maybeCompactLocked()
	return nil
}

func (s *KvStore) appendRecord(rec record.Record) (offset, length int64, err error) {
	offset = s.currentOffset
	length, err = s.appendLocked(rec)
	return offset, length, err
}

// appendLocked writes rec at the end of the active log. A failed, short or
// unsynced append is truncated away so currentOffset stays the end of file.
func (s *KvStore) appendLocked(rec record.Record) (int64, error) {
	data, err := record.Encode(rec)
	if err != nil {
		return 0, fmt.Errorf("encode %s record: %w", rec.Op, err)
	}

	n, err := s.writer.Write(data)
	if err != nil {
		s.rollbackLocked(int64(n))
		return 0, ioError("append", err)
	}
	if s.opts.SyncWrites {
		if err := s.writer.Sync(); err != nil {
			s.rollbackLocked(int64(n))
			return 0, ioError("sync", err)
		}
	}

	length := int64(len(data))
	if rec.Op == record.OpGet {
		s.uncompacted += length
	}
	s.currentOffset += length
	return length, nil
}

// rollbackLocked drops the written bytes of a failed append. If the log
// cannot be truncated they stay as dead bytes and currentOffset moves past
// them, keeping later offsets aligned with the file.
func (s *KvStore) rollbackLocked(written int64) {
	if written == 0 {
		return
	}
	if err := s.writer.Truncate(s.currentOffset); err != nil {
		s.logger.Error("Failed to roll back failed append", "offset", s.currentOffset, "bytes", written, "error", err.Error())
		s.currentOffset += written
		s.uncompacted += written
	}
}

func (s *KvStore) maybeCompactLocked() {
	if s.uncompacted <= s.opts.CompactionThreshold {
		return
	}
	if err := s.compactLocked(); err != nil {
		s.logger.Error("Compaction failed, previous log kept", "error", err.Error())
	}
}

// Compact rewrites the log so it holds only live Set records.
func (s *KvStore) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.compactLocked()
}

// compactLocked copies every live record, in key order, into the next
// generation. The new file is written under a temporary name, synced and
// renamed into place before the old generation is deleted, so a failure at
// any point leaves exactly one complete generation with the highest number.
func (s *KvStore) compactLocked() error {
	start := time.Now()
	newGen := s.gen + 1
	finalPath := s.logPath(newGen)
	tmpPath := finalPath + tmpFileExt

	writer, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return ioError("compact", err)
	}
	reader, err := os.Open(tmpPath)
	if err != nil {
		writer.Close()
		os.Remove(tmpPath)
		return ioError("compact", err)
	}

	abort := func(err error) error {
		writer.Close()
		reader.Close()
		os.Remove(tmpPath)
		return err
	}

	keys := make([]string, 0, len(s.index))
	for key := range s.index {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	newIndex := make(map[string]indexEntry, len(keys))
	w := bufio.NewWriter(writer)
	var offset int64
	for _, key := range keys {
		entry := s.index[key]
		buf := make([]byte, entry.length)
		if _, err := s.reader.ReadAt(buf, entry.offset); err != nil {
			return abort(ioError("compact", err))
		}
		if _, err := w.Write(buf); err != nil {
			return abort(ioError("compact", err))
		}
		newIndex[key] = indexEntry{gen: newGen, offset: offset, length: entry.length}
		offset += entry.length
	}
	if err := w.Flush(); err != nil {
		return abort(ioError("compact", err))
	}
	if err := writer.Sync(); err != nil {
		return abort(ioError("compact", err))
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return abort(ioError("compact", err))
	}
	if err := syncDir(s.dir); err != nil {
		s.logger.Warn("Failed to sync data directory after compaction", "error", err.Error())
	}

	oldGen := s.gen
	oldSize := s.currentOffset
	s.closeFiles()
	if err := os.Remove(s.logPath(oldGen)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove compacted log generation", "generation", oldGen, "error", err.Error())
	}

	s.gen = newGen
	s.writer = writer
	s.reader = reader
	s.index = newIndex
	s.currentOffset = offset
	s.uncompacted = 0
	s.compactions++

	s.logger.Info("Compaction completed",
		"generation", newGen,
		"keys", len(newIndex),
		"before", humanize.Bytes(uint64(oldSize)),
		"after", humanize.Bytes(uint64(offset)),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stats reports index and log accounting.
func (s *KvStore) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"engine":            "kvs",
		"keys":              len(s.index),
		"generation":        s.gen,
		"log_size":          s.currentOffset,
		"log_size_human":    humanize.Bytes(uint64(s.currentOffset)),
		"uncompacted_bytes": s.uncompacted,
		"compactions":       s.compactions,
	}
}

// Close releases the log files and the directory lock. It is safe to call
// more than once.
func (s *KvStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.writer != nil {
		if serr := s.writer.Sync(); serr != nil {
			err = ioError("close", serr)
		}
	}
	s.closeFiles()
	unlockDirectory(s.lock)
	return err
}

func (s *KvStore) closeFiles() {
	if s.writer != nil {
		s.writer.Close()
		s.writer = nil
	}
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}
}

func (s *KvStore) logPath(gen uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%06d%s", gen, logFileExt))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

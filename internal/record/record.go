// Package record defines the entries persisted in the append-only log and
// their line-delimited encoding.
//
// Each record is encoded as one JSON object followed by a newline:
//
//	{"op":"set","key":"a","value":"1","sum":1234567890}\n
//
// JSON escapes control characters inside strings, so the newline delimiter
// never appears unescaped inside a key or value. The sum field is an xxhash64
// over the op, key and value and is verified on every decode.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// Delimiter terminates every encoded record.
const Delimiter = '\n'

// Op identifies the kind of a record.
type Op string

const (
	OpSet    Op = "set"
	OpRemove Op = "rm"
	// OpGet is only written when read auditing is enabled. Replay ignores it.
	OpGet Op = "get"
)

var (
	ErrInvalidRecord = errors.New("invalid record")
	ErrChecksum      = errors.New("record checksum mismatch")
	ErrInvalidUTF8   = errors.New("key and value must be valid UTF-8")
)

// Record is a single log entry.
type Record struct {
	Op    Op
	Key   string
	Value string
}

// Set returns a record that binds key to value.
func Set(key, value string) Record {
	return Record{Op: OpSet, Key: key, Value: value}
}

// Remove returns a tombstone for key.
func Remove(key string) Record {
	return Record{Op: OpRemove, Key: key}
}

// Get returns an audit record for a read of key.
func Get(key string) Record {
	return Record{Op: OpGet, Key: key}
}

type line struct {
	Op    Op     `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
	Sum   uint64 `json:"sum"`
}

// Encode serializes r, including the trailing delimiter.
func Encode(r Record) ([]byte, error) {
	if !r.Op.valid() {
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidRecord, r.Op)
	}
	if !utf8.ValidString(r.Key) || !utf8.ValidString(r.Value) {
		return nil, ErrInvalidUTF8
	}
	if r.Op != OpSet && r.Value != "" {
		return nil, fmt.Errorf("%w: %s record carries a value", ErrInvalidRecord, r.Op)
	}

	data, err := json.Marshal(line{Op: r.Op, Key: r.Key, Value: r.Value, Sum: checksum(r)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return append(data, Delimiter), nil
}

// Decode parses one encoded record. The trailing delimiter is optional.
func Decode(data []byte) (Record, error) {
	data = bytes.TrimSuffix(data, []byte{Delimiter})
	if len(data) == 0 {
		return Record{}, fmt.Errorf("%w: empty line", ErrInvalidRecord)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var l line
	if err := dec.Decode(&l); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if dec.More() {
		return Record{}, fmt.Errorf("%w: trailing data", ErrInvalidRecord)
	}

	r := Record{Op: l.Op, Key: l.Key, Value: l.Value}
	if !r.Op.valid() {
		return Record{}, fmt.Errorf("%w: unknown op %q", ErrInvalidRecord, l.Op)
	}
	if checksum(r) != l.Sum {
		return Record{}, ErrChecksum
	}
	return r, nil
}

func (o Op) valid() bool {
	switch o {
	case OpSet, OpRemove, OpGet:
		return true
	}
	return false
}

func checksum(r Record) uint64 {
	d := xxhash.New()
	d.WriteString(string(r.Op))
	d.Write([]byte{0})
	d.WriteString(r.Key)
	d.Write([]byte{0})
	d.WriteString(r.Value)
	return d.Sum64()
}

package storage

import (
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned when a key has never been set or was removed.
var ErrKeyNotFound = errors.New("key not found")

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("storage engine is closed")

// Kind classifies storage failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindKeyNotFound
	KindIO
	KindCorruption
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindKeyNotFound:
		return "not_found"
	case KindIO:
		return "io"
	case KindCorruption:
		return "corruption"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) Kind {
	switch s {
	case "not_found":
		return KindKeyNotFound
	case "io":
		return KindIO
	case "corruption":
		return KindCorruption
	case "backend":
		return KindBackend
	default:
		return KindUnknown
	}
}

// Error is a classified storage failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err. Nil errors are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrKeyNotFound) {
		return KindKeyNotFound
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func ioError(op string, err error) error {
	return &Error{Kind: KindIO, Op: op, Err: err}
}

func corruptionError(op string, err error) error {
	return &Error{Kind: KindCorruption, Op: op, Err: err}
}

// BackendError wraps a failure reported by a foreign store.
func BackendError(backend string, err error) error {
	return &Error{Kind: KindBackend, Op: backend, Err: err}
}

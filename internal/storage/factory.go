package storage

import (
	"errors"
	"fmt"
)

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

var (
	ErrUnsupportedKind   = errors.New("unsupported store kind")
	ErrSQLiteUnavailable = errors.New("sqlite store unavailable")
)

// NewStore opens the param set and trial store named by kind. An empty kind
// selects the memory store; path is only read by the sqlite store.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		return newSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w %q: want %s or %s", ErrUnsupportedKind, kind, KindMemory, KindSQLite)
	}
}

// CloseIfSupported releases stores that hold a database handle.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}

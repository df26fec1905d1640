package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store is the key/value persistence substrate used by the tracker and the
// upload queue. Values are opaque JSON documents; writes are last-write-wins.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Keys lists every key currently present.
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

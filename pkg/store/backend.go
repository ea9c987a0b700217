package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Backend is a flat durable key-value map. Writes are last-write-wins.
type Backend interface {
	Put(ctx context.Context, key string, value []byte) error
	// Get returns ErrNotFound for a missing key
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete of a missing key is not an error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Close() error
}

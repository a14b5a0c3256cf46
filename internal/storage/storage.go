// Package storage provides durable key-value persistence for registry data.
//
// The registry treats storage as a flat namespace of string keys, each
// holding one opaque blob. Implementations must make Set atomic: a reader
// observes either the previous blob or the new one, never a torn write.
package storage

import (
	"context"
	"errors"
)

//go:generate mockgen -destination=mocks/mock_storage.go -package=mocks -source=storage.go Store

// ErrKeyNotFound is returned by Get when no value has been stored under the key.
var ErrKeyNotFound = errors.New("key not found")

// Store defines the interface for durable key-value persistence.
type Store interface {
	// Get retrieves the blob stored under key.
	// Returns ErrKeyNotFound if the key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the blob under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
}

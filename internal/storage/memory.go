package storage

import (
	"context"
	"fmt"
	"sync"
)

// memoryStore implements Store with a process-local map.
// Used in tests and for ephemeral runs where durability is not needed.
type memoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() Store {
	return &memoryStore{
		values: make(map[string][]byte),
	}
}

// Get retrieves the blob stored under key.
func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	// Return a copy so callers cannot mutate the stored blob
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores the blob under key.
func (m *memoryStore) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("storage key cannot be empty")
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = stored
	return nil
}

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// fileStore implements Store using the local filesystem.
// Each key maps to a JSON file under the base directory.
type fileStore struct {
	basePath string
}

// NewFileStore creates a new file-backed store rooted at basePath.
// The directory is created on first write if it does not exist.
func NewFileStore(basePath string) Store {
	return &fileStore{
		basePath: basePath,
	}
}

// Get reads the blob stored under key.
func (f *fileStore) Get(_ context.Context, key string) ([]byte, error) {
	filePath, err := f.keyPath(key)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // File path is derived from a validated key under the managed base directory
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("failed to read storage file for key '%s': %w", key, err)
	}

	return data, nil
}

// Set writes the blob under key using a temporary file and atomic rename.
func (f *fileStore) Set(_ context.Context, key string, value []byte) error {
	filePath, err := f.keyPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, value, 0600); err != nil {
		return fmt.Errorf("failed to write temporary file for key '%s': %w", key, err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, filePath); err != nil {
		// Clean up temp file on error
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename storage file for key '%s': %w", key, err)
	}

	return nil
}

// keyPath maps a key to its file path, rejecting keys that would escape
// the base directory.
func (f *fileStore) keyPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage key cannot be empty")
	}
	if key != filepath.Base(key) {
		return "", fmt.Errorf("invalid storage key '%s': must not contain path separators", key)
	}
	return filepath.Join(f.basePath, key+".json"), nil
}

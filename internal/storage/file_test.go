package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewFileStore(t.TempDir())

	require.NoError(t, store.Set(ctx, "campus_locations", []byte(`[{"id":"library"}]`)))

	got, err := store.Get(ctx, "campus_locations")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[{"id":"library"}]`), got)
}

func TestFileStoreGetMissingKey(t *testing.T) {
	t.Parallel()
	store := NewFileStore(t.TempDir())

	_, err := store.Get(context.Background(), "never_written")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFileStoreOverwrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewFileStore(t.TempDir())

	require.NoError(t, store.Set(ctx, "key", []byte("first")))
	require.NoError(t, store.Set(ctx, "key", []byte("second")))

	got, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestFileStoreCreatesBaseDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := filepath.Join(t.TempDir(), "nested", "data")
	store := NewFileStore(base)

	require.NoError(t, store.Set(ctx, "key", []byte("value")))

	info, err := os.Stat(filepath.Join(base, "key.json"))
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestFileStoreLeavesNoTempFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := t.TempDir()
	store := NewFileStore(base)

	require.NoError(t, store.Set(ctx, "key", []byte("value")))

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "key.json", entries[0].Name())
}

func TestFileStoreRejectsInvalidKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewFileStore(t.TempDir())

	tests := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "path_separator", key: "a/b"},
		{name: "parent_traversal", key: "../escape"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Error(t, store.Set(ctx, tt.key, []byte("value")))
			_, err := store.Get(ctx, tt.key)
			assert.Error(t, err)
		})
	}
}

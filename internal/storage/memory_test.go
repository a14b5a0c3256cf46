package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "campus_locations", []byte("value")))

	got, err := store.Get(ctx, "campus_locations")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)
}

func TestMemoryStoreGetMissingKey(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "never_written")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStoreRejectsEmptyKey(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	assert.Error(t, store.Set(context.Background(), "", []byte("value")))
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	value := []byte("original")
	require.NoError(t, store.Set(ctx, "key", value))
	value[0] = 'X'

	got, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)

	// Mutating the returned slice must not affect the stored blob either.
	got[0] = 'Y'
	again, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestSetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.Set(ctx, "daylit/u/notes", []json.RawMessage{json.RawMessage(`{"id":"n1"}`)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	entry, err := store.Get(ctx, "daylit/u/notes")
	require.NoError(t, err)
	require.Len(t, entry.Rows, 1)
	assert.JSONEq(t, `{"id":"n1"}`, string(entry.Rows[0]))
	assert.Equal(t, uint64(1), entry.Version)
}

func TestCompareAndSetRejectsStaleVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Set(ctx, "k", nil)
	require.NoError(t, err)
	_, err = store.Set(ctx, "k", nil)
	require.NoError(t, err)

	ok, current, err := store.CompareAndSet(ctx, "k", []json.RawMessage{json.RawMessage(`{}`)}, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(2), current)

	ok, current, err = store.CompareAndSet(ctx, "k", []json.RawMessage{json.RawMessage(`{}`)}, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), current)
}

func TestCorruptFileReadsEmpty(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.file("k"), []byte("garbage"), 0600))

	entry, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Empty(t, entry.Rows)

	// The next write recovers the key.
	_, err = store.Set(context.Background(), "k", []json.RawMessage{json.RawMessage(`{"id":"a"}`)})
	require.NoError(t, err)
	entry, err = store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Len(t, entry.Rows, 1)
}

func TestKeysEscapesSlashes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"daylit/a/meals", "daylit/a/habits", "daylit/b/meals"} {
		_, err := store.Set(ctx, k, nil)
		require.NoError(t, err)
	}

	keys, err := store.Keys(ctx, "daylit/a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"daylit/a/habits", "daylit/a/meals"}, keys)

	require.NoError(t, store.Delete(ctx, "daylit/a/meals"))
	require.NoError(t, store.Delete(ctx, "daylit/a/meals"))

	keys, err = store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Set(context.Background(), "k", nil)
	require.NoError(t, err)

	files, err := os.ReadDir(store.dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "k.json", files[0].Name())
}

func TestDeleteKeepsVersionCounting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v1, err := store.Set(ctx, "k", []json.RawMessage{json.RawMessage(`{"id":"a"}`)})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "k"))

	entry, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, entry.Rows)
	assert.Greater(t, entry.Version, v1)
	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = store.Set(ctx, "k", []json.RawMessage{json.RawMessage(`{"id":"b"}`)})
	require.NoError(t, err)
	ok, _, err := store.CompareAndSet(ctx, "k", nil, v1)
	require.NoError(t, err)
	assert.False(t, ok, "a pre-delete version must not match after the key is rewritten")

	keys, err = store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

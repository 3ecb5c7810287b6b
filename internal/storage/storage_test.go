package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testPort(t *testing.T, store Port) {
	t.Helper()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "userID")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(ctx, "userID", "guest_1"))
	value, found, err := store.Get(ctx, "userID")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "guest_1", value)

	require.NoError(t, store.Set(ctx, "userID", "guest_2"))
	value, _, err = store.Get(ctx, "userID")
	require.NoError(t, err)
	require.Equal(t, "guest_2", value)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	testPort(t, store)

	require.ElementsMatch(t, []string{"userID"}, store.Keys())
	store.Delete("userID")
	require.Empty(t, store.Keys())
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	defer store.Close()

	testPort(t, store)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "mediverify.db")

	store, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "guest_1", `[]`))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	value, found, err := reopened.Get(ctx, "guest_1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `[]`, value)
}

package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophstorage/internal/client/storage"
	"github.com/iudanet/gophstorage/internal/models"
)

func TestStorage_ViewPreferences(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.GetView(ctx, "terminal:1:2:3")
	assert.ErrorIs(t, err, storage.ErrPreferencesNotFound)

	prefs := &storage.ViewPreferences{Filter: "ore", Columns: 6, Radius: 12}
	require.NoError(t, store.SaveView(ctx, "terminal:1:2:3", prefs))

	got, err := store.GetView(ctx, "terminal:1:2:3")
	require.NoError(t, err)
	assert.Equal(t, prefs, got)

	// другой терминал не затронут
	_, err = store.GetView(ctx, "terminal:0:0:0")
	assert.ErrorIs(t, err, storage.ErrPreferencesNotFound)
}

func TestStorage_LastRevision(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	rev, err := store.GetLastRevision(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rev)

	require.NoError(t, store.SaveLastRevision(ctx, "t1", 42))
	require.NoError(t, store.SaveLastRevision(ctx, "t2", 7))

	rev, err = store.GetLastRevision(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), rev)
}

func TestStorage_Bag(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	wood := models.ItemIdentity{PrefabID: "Wood", Quality: 1}
	sword := models.ItemIdentity{PrefabID: "SwordIron", Quality: 3, Variant: 2}

	items, err := store.GetBag(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, store.SaveBag(ctx, "alice", map[models.ItemIdentity]int{wood: 12, sword: 1, {PrefabID: "Stone", Quality: 1}: 0}))

	items, err = store.GetBag(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[models.ItemIdentity]int{wood: 12, sword: 1}, items)

	items, err = store.GetBag(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, items)
}

package boltdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophstorage/internal/client/storage"
)

func TestStorage_SaveGetDeleteProfile(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	p := &storage.Profile{
		PlayerID:    "alice",
		ServerURL:   "http://localhost:8080",
		AccessToken: "token",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
	}

	// До сохранения профиля нет
	_, err := store.GetProfile(ctx)
	assert.ErrorIs(t, err, storage.ErrProfileNotFound)
	ok, err := store.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveProfile(ctx, p))

	got, err := store.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	ok, err = store.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Истекший токен
	p.ExpiresAt = time.Now().Add(-time.Hour).Unix()
	require.NoError(t, store.SaveProfile(ctx, p))
	ok, err = store.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.DeleteProfile(ctx))
	_, err = store.GetProfile(ctx)
	assert.ErrorIs(t, err, storage.ErrProfileNotFound)
	assert.ErrorIs(t, store.DeleteProfile(ctx), storage.ErrProfileNotFound)
}

package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/pitlane/internal/client/storage"
)

func TestSessionToken(t *testing.T) {
	ctx := context.Background()
	store, _ := createTestStorage(t)

	_, err := store.GetToken(ctx)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	require.NoError(t, store.SaveToken(ctx, "token-1"))
	token, err := store.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	// Повторное сохранение заменяет токен
	require.NoError(t, store.SaveToken(ctx, "token-2"))
	token, err = store.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)

	require.NoError(t, store.DeleteToken(ctx))
	_, err = store.GetToken(ctx)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	err = store.DeleteToken(ctx)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

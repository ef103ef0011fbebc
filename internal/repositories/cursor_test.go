package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCursorIsLazilyCreatedSingleton(t *testing.T) {
	db := newTestDB(t)
	repo := NewCursorRepository(db)
	ctx := context.Background()

	cursor, err := repo.Get(ctx)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, cursor.DeviceID)
	require.Nil(t, cursor.PullCursor)
	require.Nil(t, cursor.LastPullAt)

	// The device identity is minted once and stays stable.
	again, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, cursor.DeviceID, again.DeviceID)
	require.Equal(t, cursor.ID, again.ID)
}

func TestCursorAdvancePersistsPosition(t *testing.T) {
	db := newTestDB(t)
	repo := NewCursorRepository(db)
	ctx := context.Background()

	_, err := repo.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Advance(ctx, "cursor-42"))

	cursor, err := repo.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, cursor.PullCursor)
	require.Equal(t, "cursor-42", *cursor.PullCursor)
	require.NotNil(t, cursor.LastPullAt)
}

func TestCursorAdvanceRequiresRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewCursorRepository(db)

	require.Error(t, repo.Advance(context.Background(), "cursor-1"))
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/canvas-sync/internal/models"
)

func exerciseSyncStateStore(t *testing.T, store SyncStateStore) {
	t.Helper()
	ctx := context.Background()

	last, err := store.LastFullSyncAt(ctx)
	require.NoError(t, err)
	require.Nil(t, last)

	at := time.Date(2024, 9, 1, 12, 30, 15, 500, time.UTC)
	require.NoError(t, store.SetLastFullSyncAt(ctx, at))
	require.NoError(t, store.SetLastFullSyncAt(ctx, at.Add(time.Hour)))

	last, err = store.LastFullSyncAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.True(t, at.Add(time.Hour).Equal(*last))

	courses := models.CollectionKey(models.EntityCourse, "")
	assignments := models.CollectionKey(models.EntityAssignment, "101")
	stamp, err := store.CollectionSyncedAt(ctx, courses)
	require.NoError(t, err)
	require.Nil(t, stamp)

	require.NoError(t, store.MarkCollectionSynced(ctx, courses, at))
	require.NoError(t, store.MarkCollectionSynced(ctx, assignments, at.Add(time.Minute)))

	stamp, err = store.CollectionSyncedAt(ctx, courses)
	require.NoError(t, err)
	require.NotNil(t, stamp)
	require.True(t, at.Equal(*stamp))

	stamp, err = store.CollectionSyncedAt(ctx, models.CollectionKey(models.EntityAssignment, "202"))
	require.NoError(t, err)
	require.Nil(t, stamp)

	require.NoError(t, store.Reset(ctx))
	last, err = store.LastFullSyncAt(ctx)
	require.NoError(t, err)
	require.Nil(t, last)
	stamp, err = store.CollectionSyncedAt(ctx, assignments)
	require.NoError(t, err)
	require.Nil(t, stamp)
}

func TestSyncStateRepository(t *testing.T) {
	exerciseSyncStateStore(t, NewSyncStateRepository(setupStoreTestDB(t)))
}

func TestRedisSyncStateStore(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseSyncStateStore(t, NewRedisSyncStateStore(client, "test"))
}

func TestRedisSyncStateStoreRejectsCorruptValue(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, server.Set("test:sync:last_full_sync_at", "yesterday"))

	_, err := NewRedisSyncStateStore(client, "test").LastFullSyncAt(context.Background())
	require.ErrorIs(t, err, ErrLocalStore)
}

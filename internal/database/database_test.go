package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/canvas-sync/internal/models"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := Open("file:"+uuid.NewString()+"?mode=memory&cache=shared", false)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, table := range models.All() {
		require.True(t, db.Migrator().HasTable(table))
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestConnectRequiresDSN(t *testing.T) {
	_, err := ConnectSQLite("")
	require.Error(t, err)
	_, err = ConnectPostgres("")
	require.Error(t, err)
	_, err = ConnectRedis("", "test")
	require.Error(t, err)
	_, err = ConnectNATS("", "test")
	require.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := ConnectRedis("redis://"+server.Addr(), "")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	value, err := server.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", value)
}

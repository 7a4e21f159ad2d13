package gamedb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	expires := created.Add(30 * 24 * time.Hour)

	t.Run("unknown zone", func(t *testing.T) {
		id, ok, err := store.CheckAndUpdateGame(ctx, "zone-missing", "x")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, id)
	})

	var friday int64
	t.Run("insert then check", func(t *testing.T) {
		var err error
		friday, err = store.InsertGame(ctx, "zone-1", created, expires, "Friday game")
		require.NoError(t, err)
		assert.NotZero(t, friday)

		id, ok, err := store.CheckAndUpdateGame(ctx, "zone-1", "Friday night game")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, friday, id)
	})

	t.Run("insert is idempotent per zone", func(t *testing.T) {
		id, err := store.InsertGame(ctx, "zone-1", created, expires, "Friday game")
		require.NoError(t, err)
		assert.Equal(t, friday, id)
	})

	t.Run("rename and list", func(t *testing.T) {
		saturday, err := store.InsertGame(ctx, "zone-2", created, expires, "Saturday game")
		require.NoError(t, err)
		require.NoError(t, store.UpdateGameName(ctx, friday, "Renamed"))

		games, err := store.ListGames(ctx)
		require.NoError(t, err)
		require.Len(t, games, 2)

		byZone := make(map[string]Game)
		for _, g := range games {
			byZone[g.ZoneID] = g
		}
		assert.Equal(t, "Renamed", byZone["zone-1"].Name)
		assert.Equal(t, saturday, byZone["zone-2"].ID)
		assert.True(t, byZone["zone-2"].Created.Equal(created))
		assert.True(t, byZone["zone-2"].Expires.Equal(expires))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteGame(ctx, friday))
		assert.ErrorIs(t, store.DeleteGame(ctx, friday), ErrNotFound)
		assert.ErrorIs(t, store.UpdateGameName(ctx, friday, "gone"), ErrNotFound)

		_, ok, err := store.CheckAndUpdateGame(ctx, "zone-1", "x")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "games.db"))
	require.NoError(t, err)
	defer store.Close()

	storeContract(t, store)
}

func TestSQLiteStoreInMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	storeContract(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	id, err := store.InsertGame(ctx, "zone-1", time.Now(), time.Now().Add(time.Hour), "Friday game")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, ok, err := reopened.CheckAndUpdateGame(ctx, "zone-1", "Friday game")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestSQLiteStoreRejectsBadPath(t *testing.T) {
	_, err := NewSQLiteStore("")
	assert.Error(t, err)
	_, err = NewSQLiteStore("games.db?mode=ro")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	logger := zaptest.NewLogger(t)

	store, err := Open(context.Background(), Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "g.db")}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Open(context.Background(), Config{Driver: "mysql"}, logger)
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("BOARDGAME_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BOARDGAME_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := NewPostgresStore(ctx, url, 2)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.pool.Exec(ctx, "TRUNCATE games RESTART IDENTITY")
	require.NoError(t, err)

	storeContract(t, store)
}

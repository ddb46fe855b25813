package webhook

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assistly/server/internal/shared/config"
	"github.com/assistly/server/internal/shared/database"
	apperrors "github.com/assistly/server/internal/shared/errors"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	t.Run("marks and expires", func(t *testing.T) {
		store, mr := newRedisStore(t, time.Hour)

		seen, err := store.Seen(ctx, "paypal", "WH-1")
		require.NoError(t, err)
		assert.False(t, seen)

		require.NoError(t, store.Mark(ctx, "paypal", "WH-1", "BILLING.SUBSCRIPTION.ACTIVATED"))
		require.NoError(t, store.Mark(ctx, "paypal", "WH-1", "BILLING.SUBSCRIPTION.ACTIVATED"))

		seen, err = store.Seen(ctx, "paypal", "WH-1")
		require.NoError(t, err)
		assert.True(t, seen)
		assert.True(t, mr.Exists("webhook:event:paypal:WH-1"))

		seen, err = store.Seen(ctx, "stripe", "WH-1")
		require.NoError(t, err)
		assert.False(t, seen, "event ids are scoped by provider")

		mr.FastForward(2 * time.Hour)
		seen, err = store.Seen(ctx, "paypal", "WH-1")
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("outage is unavailable", func(t *testing.T) {
		store, mr := newRedisStore(t, time.Hour)
		mr.Close()

		_, err := store.Seen(ctx, "paypal", "WH-1")
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
		assert.ErrorIs(t, store.Mark(ctx, "paypal", "WH-1", "x"), apperrors.ErrUnavailable)
	})
}

func TestGormStore(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(&config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "webhooks.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db, &Event{}))

	store := NewGormStore(db)
	base := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	seen, err := store.Seen(ctx, "paypal", "WH-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Mark(ctx, "paypal", "WH-1", "BILLING.SUBSCRIPTION.CANCELLED"))
	require.NoError(t, store.Mark(ctx, "paypal", "WH-1", "BILLING.SUBSCRIPTION.CANCELLED"), "marking twice is not an error")

	seen, err = store.Seen(ctx, "paypal", "WH-1")
	require.NoError(t, err)
	assert.True(t, seen)

	store.now = func() time.Time { return base.Add(96 * time.Hour) }
	require.NoError(t, store.Mark(ctx, "paypal", "WH-2", "BILLING.SUBSCRIPTION.CANCELLED"))

	n, err := store.Purge(ctx, base.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	seen, _ = store.Seen(ctx, "paypal", "WH-1")
	assert.False(t, seen)
	seen, _ = store.Seen(ctx, "paypal", "WH-2")
	assert.True(t, seen)
}

func TestNopStore(t *testing.T) {
	var store Store = NopStore{}
	require.NoError(t, store.Mark(context.Background(), "paypal", "WH-1", "x"))
	seen, err := store.Seen(context.Background(), "paypal", "WH-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notifyd/internal/database/testutil"
	"github.com/charlesng35/notifyd/internal/models"
)

func TestDatabaseStoreIncrementWithinWindow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "rl:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Greater(t, ttl, time.Duration(0))

	count, _, err = store.IncrementWithTTL(ctx, "rl:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	count, _, err = store.IncrementWithTTL(ctx, "rl:5.6.7.8", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestDatabaseStoreResetsExpiredWindow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.CacheEntry{
		Key:       "rl:stale",
		Value:     []byte("9"),
		ExpiresAt: time.Now().Add(-time.Second),
	}).Error)

	count, _, err := store.IncrementWithTTL(ctx, "rl:stale", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	now := time.Now()

	require.NoError(t, db.Create(&models.CacheEntry{Key: "old", Value: []byte("1"), ExpiresAt: now.Add(-time.Minute)}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{Key: "live", Value: []byte("1"), ExpiresAt: now.Add(time.Minute)}).Error)

	removed, err := store.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)
}

func TestNilStoresReturnErrors(t *testing.T) {
	var dbStore *DatabaseStore
	_, _, err := dbStore.IncrementWithTTL(context.Background(), "k", time.Minute)
	require.Error(t, err)

	var redisStore *RedisStore
	_, _, err = redisStore.IncrementWithTTL(context.Background(), "k", time.Minute)
	require.Error(t, err)

	require.Nil(t, NewDatabaseStore(nil))
	require.Nil(t, NewRedisStore(nil))
}

func TestNewRedisClientValidatesAddress(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{})
	require.Error(t, err)

	_, err = NewRedisClient(context.Background(), RedisConfig{Address: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	require.Error(t, err)
}

package mapstore

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorfx/router/internal/models"
)

func newRedisTestStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(rdb, logger, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func testMapping(pos, dest string) models.Mapping {
	return models.Mapping{
		SourceAccountID:  "src-1",
		SourcePositionID: pos,
		DestAccountID:    dest,
		DestPositionID:   "d-" + pos,
		SourceSymbol:     "XAUUSD",
		DestSymbol:       "XAUUSDm",
		SourceVolume:     1.0,
		DestVolume:       0.5,
		SourceOpenPrice:  2311.5,
		DestOpenPrice:    2311.7,
		OpenTime:         time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
		MappedAt:         time.Date(2025, 6, 2, 14, 0, 1, 0, time.UTC),
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	m := testMapping("p-1", "dest-1")
	require.NoError(t, store.CreateMapping(ctx, m))

	got, err := store.GetMapping(ctx, "src-1", "p-1", "dest-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m, *got)

	// Cold read: a fresh store over the same keyspace must see the same data.
	cold := NewRedisStoreWithClient(store.rdb, store.logger)
	got, err = cold.GetMapping(ctx, "src-1", "p-1", "dest-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m, *got)
}

func TestRedisStoreCreateIsIdempotent(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	first := testMapping("p-1", "dest-1")
	require.NoError(t, store.CreateMapping(ctx, first))

	// A retried create must not overwrite the original destination position.
	second := first
	second.DestPositionID = "other"
	require.NoError(t, store.CreateMapping(ctx, second))

	got, err := store.GetMapping(ctx, "src-1", "p-1", "dest-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "d-p-1", got.DestPositionID)
}

func TestRedisStoreFanOutLegs(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateMapping(ctx, testMapping("p-1", "dest-1")))
	require.NoError(t, store.CreateMapping(ctx, testMapping("p-1", "dest-2")))
	require.NoError(t, store.CreateMapping(ctx, testMapping("p-2", "dest-1")))

	legs, err := store.GetPositionMappings(ctx, "src-1", "p-1")
	require.NoError(t, err)
	assert.Len(t, legs, 2)

	all, err := store.GetAccountMappings(ctx, "src-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRedisStoreDeleteMapping(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateMapping(ctx, testMapping("p-1", "dest-1")))
	require.NoError(t, store.DeleteMapping(ctx, "src-1", "p-1", "dest-1"))

	got, err := store.GetMapping(ctx, "src-1", "p-1", "dest-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := store.GetAccountMappings(ctx, "src-1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRedisStorePrunesStaleIndexMembers(t *testing.T) {
	store, mr := newRedisTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateMapping(ctx, testMapping("p-1", "dest-1")))

	// Simulate a crash between record delete and index removal.
	mr.Del("map/src-1/p-1/dest-1")
	store.mu.Lock()
	store.cache = make(map[models.MappingKey]models.Mapping)
	store.mu.Unlock()

	all, err := store.GetAccountMappings(ctx, "src-1")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.False(t, mr.Exists("map_idx/src-1"), "stale member should be pruned")
}

func TestRedisStoreRecentlyClosedExpires(t *testing.T) {
	store, mr := newRedisTestStore(t, WithClosedTTL(15*time.Minute))
	ctx := context.Background()

	require.NoError(t, store.RecordClose(ctx, models.CloseInfo{
		SourceAccountID:  "src-1",
		SourcePositionID: "p-1",
		Result:           "closed",
		ClosedAt:         time.Now(),
	}))

	closed, err := store.WasRecentlyClosed(ctx, "src-1", "p-1")
	require.NoError(t, err)
	assert.True(t, closed)

	mr.FastForward(16 * time.Minute)

	closed, err = store.WasRecentlyClosed(ctx, "src-1", "p-1")
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestRedisStoreFindByDestPosition(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	m := testMapping("p-1", "dest-1")
	require.NoError(t, store.CreateMapping(ctx, m))

	got, err := store.FindByDestPosition(ctx, "dest-1", "d-p-1", []string{"src-1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p-1", got.SourcePositionID)

	got, err = store.FindByDestPosition(ctx, "dest-1", "missing", []string{"src-1"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreWarm(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateMapping(ctx, testMapping("p-1", "dest-1")))

	cold := NewRedisStoreWithClient(store.rdb, store.logger)
	require.NoError(t, cold.Warm(ctx, []string{"src-1"}))

	cold.mu.RLock()
	defer cold.mu.RUnlock()
	assert.Len(t, cold.cache, 1)
}

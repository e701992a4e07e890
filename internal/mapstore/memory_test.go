package mapstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorfx/router/internal/models"
)

func TestMemoryStoreCreateIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := testMapping("p-1", "dest-1")
	require.NoError(t, store.CreateMapping(ctx, first))

	second := first
	second.DestPositionID = "other"
	require.NoError(t, store.CreateMapping(ctx, second))

	got, err := store.GetMapping(ctx, "src-1", "p-1", "dest-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "d-p-1", got.DestPositionID)
}

func TestMemoryStoreTripleKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateMapping(ctx, testMapping("p-1", "dest-1")))
	require.NoError(t, store.CreateMapping(ctx, testMapping("p-1", "dest-2")))

	legs, err := store.GetPositionMappings(ctx, "src-1", "p-1")
	require.NoError(t, err)
	assert.Len(t, legs, 2)

	require.NoError(t, store.DeleteMapping(ctx, "src-1", "p-1", "dest-1"))

	legs, err = store.GetPositionMappings(ctx, "src-1", "p-1")
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, "dest-2", legs[0].DestAccountID)
}

func TestMemoryStoreRecentlyClosedExpires(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore(
		WithMemoryClosedTTL(15*time.Minute),
		WithMemoryClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	require.NoError(t, store.RecordClose(ctx, models.CloseInfo{
		SourceAccountID:  "src-1",
		SourcePositionID: "p-1",
		Result:           "closed",
	}))

	closed, err := store.WasRecentlyClosed(ctx, "src-1", "p-1")
	require.NoError(t, err)
	assert.True(t, closed)

	now = now.Add(16 * time.Minute)
	closed, err = store.WasRecentlyClosed(ctx, "src-1", "p-1")
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestMemoryStoreFindByDestPosition(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateMapping(ctx, testMapping("p-1", "dest-1")))

	got, err := store.FindByDestPosition(ctx, "dest-1", "d-p-1", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "src-1", got.SourceAccountID)
}

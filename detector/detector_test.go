package detector

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasdevji/prowhey-middleware/cache"
	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/store"
)

func newTestDetector(t *testing.T) (*Detector, *cache.Cache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.New(store.NewFromClient(client))
	return New(c), c
}

func TestDetectDropsNoOpEntry(t *testing.T) {
	d, c := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entity.TypeProduct, "p1", map[string]any{"name": "x"}, "h1", 1, 1000))

	updates, err := d.Detect(ctx, entity.TypeProduct, []entity.JournalEntry{
		{EntityID: "p1", DataHash: "h1", Version: 1},
	})
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestDetectEmitsUpsertOnHashMismatch(t *testing.T) {
	d, c := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entity.TypeProduct, "p1", map[string]any{"name": "new"}, "h2", 2, 2000))

	updates, err := d.Detect(ctx, entity.TypeProduct, []entity.JournalEntry{
		{EntityID: "p1", DataHash: "h1", Version: 1},
	})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, KindUpsert, updates[0].Kind)
	assert.Equal(t, "new", updates[0].Payload["name"])
	assert.Equal(t, int64(2), updates[0].Version)
}

func TestDetectEmitsDeleteForTombstone(t *testing.T) {
	d, c := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entity.TypeProduct, "p1", map[string]any{"name": "x"}, "h1", 1, 1000))
	_, err := c.Tombstone(ctx, entity.TypeProduct, "p1", 2000)
	require.NoError(t, err)

	updates, err := d.Detect(ctx, entity.TypeProduct, []entity.JournalEntry{
		{EntityID: "p1", DataHash: "h1", Version: 1},
	})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, KindDelete, updates[0].Kind)
}

func TestDetectKeepsLatestEntryPerEntityID(t *testing.T) {
	d, c := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entity.TypeProduct, "p1", map[string]any{"name": "final"}, "h3", 3, 3000))

	updates, err := d.Detect(ctx, entity.TypeProduct, []entity.JournalEntry{
		{EntityID: "p1", DataHash: "h1", Version: 1},
		{EntityID: "p1", DataHash: "h2", Version: 2},
		{EntityID: "p1", DataHash: "h3", Version: 3},
	})
	require.NoError(t, err)
	assert.Empty(t, updates, "latest entry's hash matches cache, so it must be dropped as a no-op")
}

func TestDetectSkipsEntryWithNoCacheEntry(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()

	updates, err := d.Detect(ctx, entity.TypeProduct, []entity.JournalEntry{
		{EntityID: "phantom", DataHash: "h1", Version: 1},
	})
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestDetectCarriesIdempotencyKey(t *testing.T) {
	d, c := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entity.TypeProduct, "p1", map[string]any{"name": "new"}, "h2", 2, 2000))

	updates, err := d.Detect(ctx, entity.TypeProduct, []entity.JournalEntry{
		{EntityID: "p1", DataHash: "h1", Version: 1, IdempotencyKey: "idem-1"},
	})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "idem-1", updates[0].IdempotencyKey)
}

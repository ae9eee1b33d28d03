package sync

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasdevji/prowhey-middleware/cache"
	"github.com/atlasdevji/prowhey-middleware/detector"
	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/journal"
	"github.com/atlasdevji/prowhey-middleware/store"
)

func newTestProcessor(t *testing.T) (*Processor, *cache.Cache, *journal.Journal) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewFromClient(client)
	c := cache.New(s)
	j := journal.New(s)
	d := detector.New(c)
	return New(j, d), c, j
}

func TestProcessReturnsInSyncWhenNoTypesRequested(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	resp, err := p.Process(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, resp.InSync)
}

func TestProcessReturnsUpdateForChangedEntity(t *testing.T) {
	p, c, j := newTestProcessor(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entity.TypeProduct, "p1", map[string]any{"name": "new"}, "h2", 1, 1000))
	_, err := j.Append(ctx, entity.TypeProduct, entity.JournalEntry{EntityID: "p1", DataHash: "h2", Version: 1})
	require.NoError(t, err)

	resp, err := p.Process(ctx, Request{EntityTypes: []entity.Type{entity.TypeProduct}})
	require.NoError(t, err)
	assert.False(t, resp.InSync)
	require.Len(t, resp.Updates, 1)
	assert.Equal(t, "p1", resp.Updates[0].EntityID)
	assert.NotEmpty(t, resp.LastIDs[entity.TypeProduct])
}

func TestProcessAdvancesCursorEvenWhenAllEntriesAreNoOps(t *testing.T) {
	p, c, j := newTestProcessor(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entity.TypeProduct, "p1", map[string]any{"name": "x"}, "h1", 1, 1000))
	id, err := j.Append(ctx, entity.TypeProduct, entity.JournalEntry{EntityID: "p1", DataHash: "h1", Version: 1})
	require.NoError(t, err)

	resp, err := p.Process(ctx, Request{EntityTypes: []entity.Type{entity.TypeProduct}})
	require.NoError(t, err)
	assert.True(t, resp.InSync)
	assert.Equal(t, id, resp.LastIDs[entity.TypeProduct])
}

func TestProcessFiltersNotificationsByAudience(t *testing.T) {
	p, c, j := newTestProcessor(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entity.TypeNotification, "n1", map[string]any{"text": "hi"}, "h1", 1, 1000))
	_, err := j.Append(ctx, entity.TypeNotification, entity.JournalEntry{
		EntityID: "n1", DataHash: "h1", Version: 1,
		TargetUsers: []string{"someone-else"},
	})
	require.NoError(t, err)

	resp, err := p.Process(ctx, Request{
		EntityTypes: []entity.Type{entity.TypeNotification},
		Caller:      entity.CallerContext{UserID: "u1"},
	})
	require.NoError(t, err)
	assert.True(t, resp.InSync, "caller is not targeted, so the entry should be filtered out before change detection")
}

func TestProcessFiltersMessagesByOwner(t *testing.T) {
	p, c, j := newTestProcessor(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entity.TypeMessage, "m1", map[string]any{"body": "hi"}, "h1", 1, 1000))
	_, err := j.Append(ctx, entity.TypeMessage, entity.JournalEntry{
		EntityID: "m1", DataHash: "h1", Version: 1, OwnerUserID: "owner",
	})
	require.NoError(t, err)

	asOwner, err := p.Process(ctx, Request{
		EntityTypes: []entity.Type{entity.TypeMessage},
		Caller:      entity.CallerContext{UserID: "owner"},
	})
	require.NoError(t, err)
	assert.False(t, asOwner.InSync)
	require.Len(t, asOwner.Updates, 1)

	asOther, err := p.Process(ctx, Request{
		EntityTypes: []entity.Type{entity.TypeMessage},
		Caller:      entity.CallerContext{UserID: "someone-else"},
	})
	require.NoError(t, err)
	assert.True(t, asOther.InSync, "a caller who doesn't own the message must not see it")
}

func TestProcessResolvesTypesFromLastSyncWhenEntityTypesOmitted(t *testing.T) {
	p, c, j := newTestProcessor(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entity.TypeProduct, "p1", map[string]any{"name": "new"}, "h2", 1, 1000))
	_, err := j.Append(ctx, entity.TypeProduct, entity.JournalEntry{EntityID: "p1", DataHash: "h2", Version: 1})
	require.NoError(t, err)

	resp, err := p.Process(ctx, Request{LastSync: entity.Cursor{entity.TypeProduct: entity.EarliestID}})
	require.NoError(t, err)
	assert.False(t, resp.InSync)
	require.Len(t, resp.Updates, 1)
}

func TestProcessTierVariantsConstrainTypes(t *testing.T) {
	p, c, j := newTestProcessor(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entity.TypeView, "v1", map[string]any{"count": 1}, "h1", 1, 1000))
	_, err := j.Append(ctx, entity.TypeView, entity.JournalEntry{EntityID: "v1", DataHash: "h1", Version: 1})
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, entity.TypeProduct, "p1", map[string]any{"name": "x"}, "h1", 1, 1000))
	_, err = j.Append(ctx, entity.TypeProduct, entity.JournalEntry{EntityID: "p1", DataHash: "h1", Version: 1})
	require.NoError(t, err)

	resp, err := p.ProcessFastSync(ctx, entity.Cursor{}, entity.CallerContext{}, 0)
	require.NoError(t, err)
	assert.False(t, resp.InSync)
	require.Len(t, resp.Updates, 1)
	assert.Equal(t, entity.TypeView, resp.Updates[0].Type)
}

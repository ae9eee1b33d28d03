package journal

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/store"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(store.NewFromClient(client))
}

func TestJournalAppendAndReadSince(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	id1, err := j.Append(ctx, entity.TypeProduct, entity.JournalEntry{EntityID: "p1", DataHash: "h1", Version: 1})
	require.NoError(t, err)

	id2, err := j.Append(ctx, entity.TypeProduct, entity.JournalEntry{EntityID: "p2", DataHash: "h2", Version: 1})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	all, err := j.ReadSince(ctx, entity.TypeProduct, entity.EarliestID, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p1", all[0].EntityID)
	assert.Equal(t, "p2", all[1].EntityID)

	since, err := j.ReadSince(ctx, entity.TypeProduct, id1, 10)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "p2", since[0].EntityID)
}

func TestJournalReadSinceIsExclusiveOfCursor(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	id, err := j.Append(ctx, entity.TypeProduct, entity.JournalEntry{EntityID: "p1", DataHash: "h1", Version: 1})
	require.NoError(t, err)

	again, err := j.ReadSince(ctx, entity.TypeProduct, id, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestJournalLength(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	n, err := j.Length(ctx, entity.TypeProduct)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = j.Append(ctx, entity.TypeProduct, entity.JournalEntry{EntityID: "p1", DataHash: "h1", Version: 1})
	require.NoError(t, err)

	n, err = j.Length(ctx, entity.TypeProduct)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestJournalAudienceFieldsRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	entryIn := entity.JournalEntry{
		EntityID:            "n1",
		DataHash:             "h1",
		Version:              1,
		IdempotencyKey:       "idem-1",
		TargetUsers:          []string{"u1", "u2"},
		TargetGroups:         []string{"vip"},
		TargetRegions:        []string{"north"},
		TargetProvinces:      []string{"ON"},
		TargetCities:         []string{"Toronto"},
		TargetDevices:        []string{"dev-1"},
		TargetNonRegistered:  true,
	}
	_, err := j.Append(ctx, entity.TypeNotification, entryIn)
	require.NoError(t, err)

	entries, err := j.ReadSince(ctx, entity.TypeNotification, entity.EarliestID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, entryIn.IdempotencyKey, got.IdempotencyKey)
	assert.Equal(t, entryIn.TargetUsers, got.TargetUsers)
	assert.Equal(t, entryIn.TargetGroups, got.TargetGroups)
	assert.Equal(t, entryIn.TargetRegions, got.TargetRegions)
	assert.Equal(t, entryIn.TargetProvinces, got.TargetProvinces)
	assert.Equal(t, entryIn.TargetCities, got.TargetCities)
	assert.Equal(t, entryIn.TargetDevices, got.TargetDevices)
	assert.True(t, got.TargetNonRegistered)
}

func TestJournalEntryWithoutAudienceFieldsHasEmptySlices(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	_, err := j.Append(ctx, entity.TypeProduct, entity.JournalEntry{EntityID: "p1", DataHash: "h1", Version: 1})
	require.NoError(t, err)

	entries, err := j.ReadSince(ctx, entity.TypeProduct, entity.EarliestID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].TargetUsers)
	assert.False(t, entries[0].TargetNonRegistered)
}

func TestJournalIdempotencyKeyExists(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	exists, err := j.IdempotencyKeyExists(ctx, entity.TypeProduct, "idem-1", 100)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = j.Append(ctx, entity.TypeProduct, entity.JournalEntry{EntityID: "p1", DataHash: "h1", Version: 1, IdempotencyKey: "idem-1"})
	require.NoError(t, err)

	exists, err = j.IdempotencyKeyExists(ctx, entity.TypeProduct, "idem-1", 100)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = j.IdempotencyKeyExists(ctx, entity.TypeProduct, "idem-2", 100)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestJournalIdempotencyKeyExistsIgnoresEmptyKey(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	exists, err := j.IdempotencyKeyExists(ctx, entity.TypeProduct, "", 100)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestJournalTrimBoundsToMaxLength(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := j.Append(ctx, entity.TypeProduct, entity.JournalEntry{EntityID: "p1", DataHash: "h1", Version: int64(i + 1)})
		require.NoError(t, err)
	}

	require.NoError(t, j.Trim(ctx, entity.TypeProduct, TrimPolicy{MaxLength: 2, RetentionDays: 7}))

	n, err := j.Length(ctx, entity.TypeProduct)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(2))
}

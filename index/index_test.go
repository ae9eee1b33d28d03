package index

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasdevji/prowhey-middleware/store"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(store.NewFromClient(client))
}

func TestApplyAddsToProvinceAndCitySets(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Apply(ctx, UserAttributes{UserID: "u1", Province: "Riyadh", City: "Riyadh City", IsRegistered: true}))

	members, err := idx.ProvinceMembers(ctx, "Riyadh")
	require.NoError(t, err)
	assert.Contains(t, members, "u1")

	cityMembers, err := idx.CityMembers(ctx, "Riyadh City")
	require.NoError(t, err)
	assert.Contains(t, cityMembers, "u1")
}

func TestApplyMarksUnregisteredUsers(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Apply(ctx, UserAttributes{UserID: "u1", IsRegistered: false}))

	members, err := idx.NonRegisteredMembers(ctx)
	require.NoError(t, err)
	assert.Contains(t, members, "u1")
}

func TestTransitionRemovesStaleMembership(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	prev := UserAttributes{UserID: "u1", Province: "Riyadh", IsRegistered: true}
	require.NoError(t, idx.Apply(ctx, prev))

	current := UserAttributes{UserID: "u1", Province: "Makkah", IsRegistered: true}
	require.NoError(t, idx.Transition(ctx, prev, current))

	riyadh, err := idx.ProvinceMembers(ctx, "Riyadh")
	require.NoError(t, err)
	assert.NotContains(t, riyadh, "u1")

	makkah, err := idx.ProvinceMembers(ctx, "Makkah")
	require.NoError(t, err)
	assert.Contains(t, makkah, "u1")
}

func TestReconcileRebuildsFromAuthoritativeList(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	// Seed a stale membership that reconcile must clear.
	require.NoError(t, idx.Apply(ctx, UserAttributes{UserID: "stale", Province: "Riyadh", IsRegistered: true}))

	users := []UserAttributes{
		{UserID: "u1", Province: "Makkah", City: "Jeddah", IsRegistered: true},
		{UserID: "u2", IsRegistered: false},
	}
	require.NoError(t, idx.Reconcile(ctx, users))

	riyadh, err := idx.ProvinceMembers(ctx, "Riyadh")
	require.NoError(t, err)
	assert.Empty(t, riyadh)

	makkah, err := idx.ProvinceMembers(ctx, "Makkah")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, makkah)

	nonRegistered, err := idx.NonRegisteredMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, nonRegistered)
}

// Package detector implements change detection: turning a batch of raw
// journal entries into the de-duplicated set of update events a sync client
// actually needs, by comparing each entry's recorded hash against the
// entity's current cache state.
package detector

import (
	"context"
	"fmt"

	"github.com/atlasdevji/prowhey-middleware/cache"
	"github.com/atlasdevji/prowhey-middleware/entity"
)

// ChangeKind classifies how an Update should be applied by the client.
type ChangeKind string

const (
	// KindUpsert carries a payload to create or replace.
	KindUpsert ChangeKind = "upsert"
	// KindDelete signals the entity was removed from the ERP.
	KindDelete ChangeKind = "delete"
)

// Update is one detected change ready for the audience filter and client
// response.
type Update struct {
	Type           entity.Type
	EntityID       string
	Kind           ChangeKind
	Payload        map[string]any
	Version        int64
	DataHash       string
	IdempotencyKey string
	JournalEntry   entity.JournalEntry
}

// Detector compares journal entries against the transformed cache to drop
// no-ops and classify the rest.
type Detector struct {
	cache *cache.Cache
}

// New builds a Detector backed by c.
func New(c *cache.Cache) *Detector {
	return &Detector{cache: c}
}

// Detect groups entries by entity id (keeping the latest per id, by journal
// order), then for each id compares its data_hash against the cache's
// current data_hash: equal hashes are dropped as no-ops, a tombstone cache
// hash produces a delete, anything else fetches the cache payload and
// produces an upsert.
func (d *Detector) Detect(ctx context.Context, t entity.Type, entries []entity.JournalEntry) ([]Update, error) {
	latest := latestByEntityID(entries)

	updates := make([]Update, 0, len(latest))
	for _, e := range latest {
		cached, ok, err := d.cache.Get(ctx, t, e.EntityID)
		if err != nil {
			return nil, fmt.Errorf("detector: get cache entry %s/%s: %w", t, e.EntityID, err)
		}
		if !ok {
			// The journal outran the cache (shouldn't happen given
			// write-cache-then-append ordering), treat as no-op rather than
			// surfacing a phantom update.
			continue
		}
		if cached.DataHash == e.DataHash {
			continue
		}

		if cached.IsTombstone() {
			updates = append(updates, Update{
				Type:           t,
				EntityID:       e.EntityID,
				Kind:           KindDelete,
				Version:        cached.Version,
				DataHash:       cached.DataHash,
				IdempotencyKey: e.IdempotencyKey,
				JournalEntry:   e,
			})
			continue
		}

		updates = append(updates, Update{
			Type:           t,
			EntityID:       e.EntityID,
			Kind:           KindUpsert,
			Payload:        cached.Payload,
			Version:        cached.Version,
			DataHash:       cached.DataHash,
			IdempotencyKey: e.IdempotencyKey,
			JournalEntry:   e,
		})
	}
	return updates, nil
}

// latestByEntityID keeps only the last-seen entry per entity id, preserving
// first-seen order among surviving ids so output stays close to journal order.
func latestByEntityID(entries []entity.JournalEntry) []entity.JournalEntry {
	order := make([]string, 0, len(entries))
	byID := make(map[string]entity.JournalEntry, len(entries))
	for _, e := range entries {
		if _, seen := byID[e.EntityID]; !seen {
			order = append(order, e.EntityID)
		}
		byID[e.EntityID] = e
	}
	result := make([]entity.JournalEntry, 0, len(order))
	for _, id := range order {
		result = append(result, byID[id])
	}
	return result
}

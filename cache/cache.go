// Package cache implements the transformed-entity cache: the
// always-authoritative, app-ready representation of every ERP entity,
// keyed by (entityType, entityId) and stored as one store-level hash object
// per entity so reads and writes never observe a torn mix of old and new
// fields.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/store"
)

// Cache is the transformed-entity cache.
type Cache struct {
	store *store.Store
}

// New builds a Cache backed by s.
func New(s *store.Store) *Cache {
	return &Cache{store: s}
}

// Get returns the cached entity for (t, id), or ok=false on a cache miss —
// the signal that callers (read-through ingest) should fetch-transform-write.
func (c *Cache) Get(ctx context.Context, t entity.Type, id string) (entity.CachedEntity, bool, error) {
	fields, err := c.store.HGetAll(ctx, entity.CacheKey(t, id))
	if err != nil {
		return entity.CachedEntity{}, false, fmt.Errorf("cache: get %s/%s: %w", t, id, err)
	}
	if len(fields) == 0 {
		return entity.CachedEntity{}, false, nil
	}
	return decodeCachedEntity(t, id, fields)
}

// Set atomically stores payload alongside its hash, version, and updated-at
// timestamp as one multi-field write, satisfying the "reader either sees
// the entire previous state or the entire new state" guarantee.
func (c *Cache) Set(ctx context.Context, t entity.Type, id string, payload map[string]any, dataHash string, version int64, updatedAtMs int64) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cache: marshal payload for %s/%s: %w", t, id, err)
	}

	fields := map[string]string{
		"payload":    string(payloadJSON),
		"data_hash":  dataHash,
		"version":    strconv.FormatInt(version, 10),
		"updated_at": strconv.FormatInt(updatedAtMs, 10),
	}
	if err := c.store.HSet(ctx, entity.CacheKey(t, id), fields); err != nil {
		return fmt.Errorf("cache: set %s/%s: %w", t, id, err)
	}
	return nil
}

// BumpVersion atomically increments the entity's version field, returning 1
// on first creation (when the field did not previously exist).
func (c *Cache) BumpVersion(ctx context.Context, t entity.Type, id string) (int64, error) {
	newVersion, err := c.store.HIncrBy(ctx, entity.CacheKey(t, id), "version", 1)
	if err != nil {
		return 0, fmt.Errorf("cache: bump version %s/%s: %w", t, id, err)
	}
	return newVersion, nil
}

// Tombstone writes a deletion record: empty payload, the sentinel data_hash,
// and a bumped version, so journal readers can tell the entity was removed
// from the ERP rather than merely left untouched.
func (c *Cache) Tombstone(ctx context.Context, t entity.Type, id string, updatedAtMs int64) (int64, error) {
	newVersion, err := c.BumpVersion(ctx, t, id)
	if err != nil {
		return 0, err
	}
	fields := map[string]string{
		"payload":    "{}",
		"data_hash":  entity.TombstoneHash,
		"version":    strconv.FormatInt(newVersion, 10),
		"updated_at": strconv.FormatInt(updatedAtMs, 10),
	}
	if err := c.store.HSet(ctx, entity.CacheKey(t, id), fields); err != nil {
		return 0, fmt.Errorf("cache: tombstone %s/%s: %w", t, id, err)
	}
	return newVersion, nil
}

func decodeCachedEntity(t entity.Type, id string, fields map[string]string) (entity.CachedEntity, bool, error) {
	var payload map[string]any
	if raw, ok := fields["payload"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return entity.CachedEntity{}, false, fmt.Errorf("cache: decode payload for %s/%s: %w", t, id, err)
		}
	}

	version, _ := strconv.ParseInt(fields["version"], 10, 64)
	updatedAt, _ := strconv.ParseInt(fields["updated_at"], 10, 64)

	return entity.CachedEntity{
		Type:      t,
		ID:        id,
		Payload:   payload,
		DataHash:  fields["data_hash"],
		Version:   version,
		UpdatedAt: updatedAt,
	}, true, nil
}

// Package ingest implements the three paths that write to the transformed
// cache and change journal: webhook intake, on-demand read-through, and the
// weekly full-refresh reconciler. All three share one write routine so the
// cache/journal invariants are enforced in exactly one place.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/atlasdevji/prowhey-middleware/cache"
	"github.com/atlasdevji/prowhey-middleware/common"
	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/erp"
	"github.com/atlasdevji/prowhey-middleware/hashing"
	"github.com/atlasdevji/prowhey-middleware/journal"
	"github.com/atlasdevji/prowhey-middleware/metrics"
	"github.com/atlasdevji/prowhey-middleware/notify"
)

// Clock abstracts "now" so writers are deterministic in tests.
type Clock func() time.Time

// WriteResult reports what a write attempt actually did, letting the caller
// decide what to return to an HTTP client (e.g. no new updates vs. one).
type WriteResult struct {
	Wrote     bool // false means the existing hash matched; no-op
	Tombstone bool
	Version   int64
	DataHash  string
	Payload   map[string]any
	JournalID string
}

// Writer is the single write routine shared by every ingest path.
type Writer struct {
	cache       *cache.Cache
	journal     *journal.Journal
	transformer erp.Transformer
	dispatcher  *notify.Dispatcher
	now         Clock
}

// New builds a Writer. dispatcher may be a disabled Dispatcher (see
// notify.New with Enabled=false).
func New(c *cache.Cache, j *journal.Journal, transformer erp.Transformer, dispatcher *notify.Dispatcher) *Writer {
	return &Writer{cache: c, journal: j, transformer: transformer, dispatcher: dispatcher, now: time.Now}
}

// WriteOne runs (transform → hash → compare → conditionally write) for one
// raw ERP record, per §4.6's webhook/read-through write routine.
func (w *Writer) WriteOne(ctx context.Context, t entity.Type, raw erp.RawRecord, idempotencyKey string) (WriteResult, error) {
	payload, err := w.transformer.Transform(ctx, t, raw)
	if err != nil {
		return WriteResult{}, fmt.Errorf("ingest: transform %s/%s: %w", t, raw.EntityID, err)
	}

	newHash, err := hashing.Hash(payload)
	if err != nil {
		return WriteResult{}, fmt.Errorf("ingest: hash %s/%s: %w", t, raw.EntityID, err)
	}

	existing, found, err := w.cache.Get(ctx, t, raw.EntityID)
	if err != nil {
		return WriteResult{}, fmt.Errorf("ingest: read cache %s/%s: %w", t, raw.EntityID, err)
	}
	if found && existing.DataHash == newHash {
		return WriteResult{Wrote: false, Version: existing.Version, DataHash: existing.DataHash, Payload: existing.Payload}, nil
	}

	version, err := w.cache.BumpVersion(ctx, t, raw.EntityID)
	if err != nil {
		return WriteResult{}, fmt.Errorf("ingest: bump version %s/%s: %w", t, raw.EntityID, err)
	}
	nowMs := w.now().UnixMilli()
	if err := w.cache.Set(ctx, t, raw.EntityID, payload, newHash, version, nowMs); err != nil {
		return WriteResult{}, fmt.Errorf("ingest: write cache %s/%s: %w", t, raw.EntityID, err)
	}

	if t == entity.TypeView && version%ViewJournalQuantum != 0 {
		// Performance optimisation for high-frequency view counters: the
		// cache is always current, but the journal (and therefore sync
		// clients) only observe every ViewJournalQuantum'th increment.
		return WriteResult{Wrote: true, Version: version, DataHash: newHash, Payload: payload}, nil
	}

	entry := entity.JournalEntry{
		EntityID:       raw.EntityID,
		DataHash:       newHash,
		Version:        version,
		IdempotencyKey: idempotencyKey,
		PrevHash:       existing.DataHash,
	}
	applyAudienceFields(&entry, t, raw.Data)

	entryID, err := w.journal.Append(ctx, t, entry)
	if err != nil {
		return WriteResult{}, fmt.Errorf("ingest: append journal %s/%s: %w", t, raw.EntityID, err)
	}

	w.dispatchIfTargeted(ctx, t, raw.EntityID, entryID, version, idempotencyKey, entry)

	return WriteResult{Wrote: true, Version: version, DataHash: newHash, Payload: payload, JournalID: entryID}, nil
}

// ViewJournalQuantum is the view-counter journal quantum: clients observe
// view counts in jumps of this size rather than on every increment, trading
// immediacy for journal volume on a high-frequency, low-value-per-event
// counter. The cache itself is updated on every increment regardless.
const ViewJournalQuantum = 10

// WriteTombstone marks an entity deleted; used by the full refresh when an
// ERP listing no longer contains a previously-cached id.
func (w *Writer) WriteTombstone(ctx context.Context, t entity.Type, entityID string) (WriteResult, error) {
	existing, found, err := w.cache.Get(ctx, t, entityID)
	if err != nil {
		return WriteResult{}, fmt.Errorf("ingest: read cache %s/%s: %w", t, entityID, err)
	}
	if found && existing.IsTombstone() {
		return WriteResult{Wrote: false, Tombstone: true, Version: existing.Version, DataHash: existing.DataHash}, nil
	}

	version, err := w.cache.Tombstone(ctx, t, entityID, w.now().UnixMilli())
	if err != nil {
		return WriteResult{}, fmt.Errorf("ingest: tombstone %s/%s: %w", t, entityID, err)
	}

	tombstoneEntry := entity.JournalEntry{
		EntityID: entityID,
		DataHash: entity.TombstoneHash,
		Version:  version,
		PrevHash: existing.DataHash,
	}
	entryID, err := w.journal.Append(ctx, t, tombstoneEntry)
	if err != nil {
		return WriteResult{}, fmt.Errorf("ingest: append tombstone journal %s/%s: %w", t, entityID, err)
	}

	w.dispatchIfTargeted(ctx, t, entityID, entryID, version, "", tombstoneEntry)

	return WriteResult{Wrote: true, Tombstone: true, Version: version, DataHash: entity.TombstoneHash, JournalID: entryID}, nil
}

// applyAudienceFields lifts the audience-targeting fields a webhook payload
// carries for notification/announcement entries (the disjunctive target-set
// of §3), or the owning-user and soft-delete fields a message payload
// carries, out of the raw ERP record and onto the journal entry. Every other
// entity type carries no audience data and this is a no-op.
func applyAudienceFields(entry *entity.JournalEntry, t entity.Type, data map[string]any) {
	switch t {
	case entity.TypeNotification, entity.TypeAnnouncement:
		entry.TargetUsers = stringListField(data, "target_users")
		entry.TargetGroups = stringListField(data, "target_groups")
		entry.TargetRegions = stringListField(data, "target_regions")
		entry.TargetProvinces = stringListField(data, "target_provinces")
		entry.TargetCities = stringListField(data, "target_cities")
		entry.TargetDevices = stringListField(data, "target_devices")
		entry.TargetNonRegistered = boolField(data, "target_non_registered")
	case entity.TypeMessage:
		entry.OwnerUserID = stringField(data, "user_id")
		entry.MessageDeleted = boolField(data, "deleted")
	}
}

func stringField(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func boolField(data map[string]any, key string) bool {
	v, ok := data[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// stringListField reads key out of data, accepting either a []string (the
// shape test doubles and already-decoded JSON use) or a []any of strings
// (the shape a raw ERP webhook body unmarshals into).
func stringListField(data map[string]any, key string) []string {
	v, ok := data[key]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (w *Writer) dispatchIfTargeted(ctx context.Context, t entity.Type, entityID, journalEntryID string, version int64, idempotencyKey string, entry entity.JournalEntry) {
	if w.dispatcher == nil || !notify.ShouldDispatch(t) {
		return
	}
	// Best-effort side channel: a dispatch failure must never fail the
	// ingest request that produced it, per the notification dispatcher's
	// contract; it is logged and counted instead.
	err := w.dispatcher.Dispatch(ctx, notify.DeliveryEvent{
		EntityType:      t,
		EntityID:        entityID,
		JournalEntryID:  journalEntryID,
		Version:         version,
		IdempotencyKey:  idempotencyKey,
		TargetUsers:     entry.TargetUsers,
		TargetGroups:    entry.TargetGroups,
		TargetRegions:   entry.TargetRegions,
		TargetProvinces: entry.TargetProvinces,
		TargetCities:    entry.TargetCities,
		TargetDevices:   entry.TargetDevices,
		TargetNonReg:    entry.TargetNonRegistered,
		OwnerUserID:     entry.OwnerUserID,
	})
	if err != nil {
		metrics.NotificationDispatchTotal.WithLabelValues("error").Inc()
		common.Logger.WithError(err).Warnf("ingest: notification dispatch failed for %s/%s", t, entityID)
		return
	}
	metrics.NotificationDispatchTotal.WithLabelValues("published").Inc()
}

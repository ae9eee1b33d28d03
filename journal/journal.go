// Package journal implements the per-entity-type change journal: a bounded
// append-only log that records every cache mutation so sync clients can
// discover, by cursor, which entities changed since their last contact.
// Entries are never updated or deleted except by the retention trimmer.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/store"
)

// Journal is the per-type append-only change log.
type Journal struct {
	store *store.Store
}

// New builds a Journal backed by s.
func New(s *store.Store) *Journal {
	return &Journal{store: s}
}

// Append writes one entry to t's journal and returns the store-assigned id.
// The audience-target fields are JSON-encoded into flat string fields
// because the underlying stream primitive only stores flat strings — this
// package owns both directions of that encoding boundary.
func (j *Journal) Append(ctx context.Context, t entity.Type, entryIn entity.JournalEntry) (string, error) {
	fields, err := encodeEntry(entryIn)
	if err != nil {
		return "", fmt.Errorf("journal: encode entry for %s/%s: %w", t, entryIn.EntityID, err)
	}
	id, err := j.store.XAdd(ctx, t.JournalStreamKey(), fields)
	if err != nil {
		return "", fmt.Errorf("journal: append %s/%s: %w", t, entryIn.EntityID, err)
	}
	return id, nil
}

// ReadSince returns up to limit entries appended after cursor, in journal
// order. cursor may be entity.EarliestID to read from the beginning.
func (j *Journal) ReadSince(ctx context.Context, t entity.Type, cursor string, limit int64) ([]entity.JournalEntry, error) {
	raw, err := j.store.XRange(ctx, t.JournalStreamKey(), cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: read since %s for %s: %w", cursor, t, err)
	}
	entries := make([]entity.JournalEntry, 0, len(raw))
	for _, r := range raw {
		e, err := decodeEntry(r.ID, r.Values)
		if err != nil {
			return nil, fmt.Errorf("journal: decode entry %s: %w", r.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// First returns the oldest entry currently in t's journal, used by the
// health endpoint's sync-status summary.
func (j *Journal) First(ctx context.Context, t entity.Type) (entity.JournalEntry, bool, error) {
	raw, err := j.store.XRange(ctx, t.JournalStreamKey(), entity.EarliestID, 1)
	if err != nil {
		return entity.JournalEntry{}, false, fmt.Errorf("journal: first entry for %s: %w", t, err)
	}
	if len(raw) == 0 {
		return entity.JournalEntry{}, false, nil
	}
	e, err := decodeEntry(raw[0].ID, raw[0].Values)
	if err != nil {
		return entity.JournalEntry{}, false, fmt.Errorf("journal: decode first entry for %s: %w", t, err)
	}
	return e, true, nil
}

// Last returns the newest entry currently in t's journal.
func (j *Journal) Last(ctx context.Context, t entity.Type) (entity.JournalEntry, bool, error) {
	raw, err := j.store.XRevRange(ctx, t.JournalStreamKey(), 1)
	if err != nil {
		return entity.JournalEntry{}, false, fmt.Errorf("journal: last entry for %s: %w", t, err)
	}
	if len(raw) == 0 {
		return entity.JournalEntry{}, false, nil
	}
	e, err := decodeEntry(raw[0].ID, raw[0].Values)
	if err != nil {
		return entity.JournalEntry{}, false, fmt.Errorf("journal: decode last entry for %s: %w", t, err)
	}
	return e, true, nil
}

// Length returns the current number of entries in t's journal.
func (j *Journal) Length(ctx context.Context, t entity.Type) (int64, error) {
	n, err := j.store.XLen(ctx, t.JournalStreamKey())
	if err != nil {
		return 0, fmt.Errorf("journal: length %s: %w", t, err)
	}
	return n, nil
}

// TrimPolicy bounds journal retention by both age and entry count; the
// tighter of the two wins, per the "7 days or 10k entries, whichever is
// tighter" retention rule.
type TrimPolicy struct {
	MaxLength     int64
	RetentionDays int
}

// Trim bounds t's journal to the policy's max length. Age-based retention is
// approximated by an entry-count estimate (the store's stream primitive
// trims by length, not by timestamp), so the trimmer takes the minimum of
// the configured max length and an estimate derived from recent append
// throughput — see EstimateMaxLength.
func (j *Journal) Trim(ctx context.Context, t entity.Type, policy TrimPolicy) error {
	maxLen := policy.MaxLength
	if estimate, err := j.EstimateMaxLength(ctx, t, policy); err == nil && estimate > 0 && estimate < maxLen {
		maxLen = estimate
	}
	if err := j.store.XTrimMaxLenApprox(ctx, t.JournalStreamKey(), maxLen); err != nil {
		return fmt.Errorf("journal: trim %s: %w", t, err)
	}
	return nil
}

// EstimateMaxLength derives an age-based length bound: it samples the
// oldest and newest entries currently in the journal, estimates the
// per-day append rate from that window, and multiplies by RetentionDays.
// Returns 0 if the journal is too short to estimate from.
func (j *Journal) EstimateMaxLength(ctx context.Context, t entity.Type, policy TrimPolicy) (int64, error) {
	length, err := j.Length(ctx, t)
	if err != nil {
		return 0, err
	}
	if length < 2 {
		return 0, nil
	}

	oldest, err := j.store.XRange(ctx, t.JournalStreamKey(), entity.EarliestID, 1)
	if err != nil {
		return 0, err
	}
	newest, err := j.store.XRevRange(ctx, t.JournalStreamKey(), 1)
	if err != nil {
		return 0, err
	}
	if len(oldest) == 0 || len(newest) == 0 {
		return 0, nil
	}

	oldestMs, err := entryTimestampMs(oldest[0].ID)
	if err != nil {
		return 0, err
	}
	newestMs, err := entryTimestampMs(newest[0].ID)
	if err != nil {
		return 0, err
	}
	spanMs := newestMs - oldestMs
	if spanMs <= 0 {
		return 0, nil
	}

	spanDays := float64(spanMs) / float64(time.Hour.Milliseconds()*24)
	if spanDays <= 0 {
		return 0, nil
	}
	perDay := float64(length) / spanDays
	estimate := int64(perDay * float64(policy.RetentionDays))
	return estimate, nil
}

// IdempotencyKeyExists scans the trailing window of t's journal for a
// matching idempotency key without a full journal scan. It only reports
// whether the key is present; it does not itself prevent an append.
func (j *Journal) IdempotencyKeyExists(ctx context.Context, t entity.Type, key string, windowSize int64) (bool, error) {
	if key == "" {
		return false, nil
	}
	recent, err := j.store.XRevRange(ctx, t.JournalStreamKey(), windowSize)
	if err != nil {
		return false, fmt.Errorf("journal: scan idempotency window for %s: %w", t, err)
	}
	for _, r := range recent {
		if r.Values["idempotency_key"] == key {
			return true, nil
		}
	}
	return false, nil
}

func entryTimestampMs(id string) (int64, error) {
	for i, c := range id {
		if c == '-' {
			return strconv.ParseInt(id[:i], 10, 64)
		}
	}
	return strconv.ParseInt(id, 10, 64)
}

func encodeEntry(e entity.JournalEntry) (map[string]string, error) {
	fields := map[string]string{
		"entity_id": e.EntityID,
		"data_hash": e.DataHash,
		"version":   strconv.FormatInt(e.Version, 10),
	}
	if e.IdempotencyKey != "" {
		fields["idempotency_key"] = e.IdempotencyKey
	}
	if e.PrevHash != "" {
		fields["prev_hash"] = e.PrevHash
	}

	listFields := map[string][]string{
		"target_users":     e.TargetUsers,
		"target_groups":    e.TargetGroups,
		"target_regions":   e.TargetRegions,
		"target_provinces": e.TargetProvinces,
		"target_cities":    e.TargetCities,
		"target_devices":   e.TargetDevices,
	}
	for field, list := range listFields {
		if len(list) == 0 {
			continue
		}
		encoded, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		fields[field] = string(encoded)
	}
	if e.TargetNonRegistered {
		fields["target_non_registered"] = "true"
	}
	if e.OwnerUserID != "" {
		fields["owner_user_id"] = e.OwnerUserID
	}
	if e.MessageDeleted {
		fields["message_deleted"] = "true"
	}

	return fields, nil
}

func decodeEntry(id string, fields map[string]string) (entity.JournalEntry, error) {
	version, _ := strconv.ParseInt(fields["version"], 10, 64)

	e := entity.JournalEntry{
		ID:             id,
		EntityID:       fields["entity_id"],
		DataHash:       fields["data_hash"],
		Version:        version,
		IdempotencyKey: fields["idempotency_key"],
		PrevHash:       fields["prev_hash"],
	}

	listFields := map[string]*[]string{
		"target_users":     &e.TargetUsers,
		"target_groups":    &e.TargetGroups,
		"target_regions":   &e.TargetRegions,
		"target_provinces": &e.TargetProvinces,
		"target_cities":    &e.TargetCities,
		"target_devices":   &e.TargetDevices,
	}
	for field, dest := range listFields {
		raw, ok := fields[field]
		if !ok || raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(raw), dest); err != nil {
			return entity.JournalEntry{}, fmt.Errorf("decode %s: %w", field, err)
		}
	}
	e.TargetNonRegistered = fields["target_non_registered"] == "true"
	e.OwnerUserID = fields["owner_user_id"]
	e.MessageDeleted = fields["message_deleted"] == "true"

	return e, nil
}

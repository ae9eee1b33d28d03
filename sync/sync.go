// Package sync implements the incremental sync request: given a client's
// per-type cursor, it reads each journal since that cursor, filters targeted
// entries to the calling user, drops no-ops via change detection, and
// returns the surviving updates plus the cursor's new position.
package sync

import (
	"context"
	"fmt"

	"github.com/atlasdevji/prowhey-middleware/audience"
	"github.com/atlasdevji/prowhey-middleware/detector"
	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/journal"
)

// DefaultLimit and MaxLimit bound the per-type batch size a sync request
// may request, per §6's `limit: int (1..1000, default 100)`.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Request is one incremental sync call.
type Request struct {
	LastSync    entity.Cursor
	EntityTypes []entity.Type // nil means "every type present in LastSync"
	Limit       int64
	Caller      entity.CallerContext
}

// Response is the sync result returned to the client.
type Response struct {
	InSync  bool
	Updates []detector.Update
	LastIDs entity.Cursor
}

// Processor runs the incremental sync algorithm against the journal and
// change detector.
type Processor struct {
	journal  *journal.Journal
	detector *detector.Detector
}

// New builds a Processor.
func New(j *journal.Journal, d *detector.Detector) *Processor {
	return &Processor{journal: j, detector: d}
}

// Process runs the full sync algorithm described by the core sync request.
func (p *Processor) Process(ctx context.Context, req Request) (Response, error) {
	types := resolveTypes(req)
	if len(types) == 0 {
		return Response{InSync: true}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	updates := make([]detector.Update, 0)
	lastIDs := entity.Cursor{}

	for _, t := range types {
		cursor := req.LastSync.IDFor(t)
		batch, err := p.journal.ReadSince(ctx, t, cursor, limit)
		if err != nil {
			return Response{}, fmt.Errorf("sync: read since for %s: %w", t, err)
		}
		if len(batch) == 0 {
			continue
		}

		filtered := batch
		if t == entity.TypeNotification || t == entity.TypeMessage {
			filtered = filterByAudience(t, batch, &req.Caller)
		}

		survivors, err := p.detector.Detect(ctx, t, filtered)
		if err != nil {
			return Response{}, fmt.Errorf("sync: detect for %s: %w", t, err)
		}

		updates = append(updates, survivors...)
		// Advance the cursor to the last entry read, even when every entry
		// in the batch was filtered or deduplicated away, so the client
		// never re-reads the same no-op entries on its next poll.
		lastIDs[t] = batch[len(batch)-1].ID
	}

	if len(updates) == 0 {
		return Response{InSync: true, LastIDs: lastIDs}, nil
	}
	return Response{InSync: false, Updates: updates, LastIDs: lastIDs}, nil
}

// ProcessFastSync constrains the type set to the fast tier: view, comment, user.
func (p *Processor) ProcessFastSync(ctx context.Context, lastSync entity.Cursor, caller entity.CallerContext, limit int64) (Response, error) {
	return p.Process(ctx, Request{LastSync: lastSync, EntityTypes: entity.FastTierTypes, Caller: caller, Limit: limit})
}

// ProcessMediumSync constrains the type set to the medium tier: stock,
// notification, announcement, message.
func (p *Processor) ProcessMediumSync(ctx context.Context, lastSync entity.Cursor, caller entity.CallerContext, limit int64) (Response, error) {
	return p.Process(ctx, Request{LastSync: lastSync, EntityTypes: entity.MediumTierTypes, Caller: caller, Limit: limit})
}

// ProcessSlowSync constrains the type set to the slow tier: product, price,
// hero, home, bundle.
func (p *Processor) ProcessSlowSync(ctx context.Context, lastSync entity.Cursor, caller entity.CallerContext, limit int64) (Response, error) {
	return p.Process(ctx, Request{LastSync: lastSync, EntityTypes: entity.SlowTierTypes, Caller: caller, Limit: limit})
}

func resolveTypes(req Request) []entity.Type {
	if len(req.EntityTypes) > 0 {
		return req.EntityTypes
	}
	types := make([]entity.Type, 0, len(req.LastSync))
	for t := range req.LastSync {
		types = append(types, t)
	}
	return types
}

func filterByAudience(t entity.Type, entries []entity.JournalEntry, caller *entity.CallerContext) []entity.JournalEntry {
	filtered := make([]entity.JournalEntry, 0, len(entries))
	for _, e := range entries {
		if t == entity.TypeMessage {
			if audience.MatchesMessage(audience.Message{OwnerUserID: e.OwnerUserID, Deleted: e.MessageDeleted}, caller) {
				filtered = append(filtered, e)
			}
			continue
		}
		if audience.SafeMatches(audience.TargetSetFromJournalEntry(e), caller) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

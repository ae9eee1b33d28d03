package ingest

import (
	"context"
	"fmt"

	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/erp"
)

// Webhook accepts a `{entity_type, entity_id?}` notification, fetches the
// authoritative record(s) from the ERP, and runs the shared write routine
// for each. entity_id may be absent for list-shaped types (hero/bundle/home)
// whose fetch naturally returns every currently-published record.
func Webhook(ctx context.Context, fetcher erp.Fetcher, w *Writer, t entity.Type, entityID, idempotencyKey string) ([]WriteResult, error) {
	var records []erp.RawRecord
	var err error
	if entityID != "" {
		records, err = fetcher.FetchOne(ctx, t, entityID)
	} else {
		records, err = fetcher.FetchPublished(ctx, t)
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: webhook fetch %s/%s: %w", t, entityID, err)
	}

	results := make([]WriteResult, 0, len(records))
	for _, raw := range records {
		result, err := w.WriteOne(ctx, t, raw, idempotencyKey)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// ReadThrough behaves exactly as Webhook for a single entity id, invoked on
// an HTTP-surface cache miss rather than an inbound ERP notification.
func ReadThrough(ctx context.Context, fetcher erp.Fetcher, w *Writer, t entity.Type, entityID string) (WriteResult, error) {
	records, err := fetcher.FetchOne(ctx, t, entityID)
	if err != nil {
		return WriteResult{}, fmt.Errorf("ingest: read-through fetch %s/%s: %w", t, entityID, err)
	}
	if len(records) == 0 {
		return WriteResult{}, &erp.NotPublishedError{EntityID: entityID}
	}
	return w.WriteOne(ctx, t, records[0], "")
}

// FullRefreshResult summarizes one type's reconciliation pass.
type FullRefreshResult struct {
	Type        entity.Type
	Written     int
	Tombstoned  int
	Unchanged   int
	TotalListed int
}

// FullRefresh walks the ERP's published-entity list for t, writing every
// entity through the shared write routine, then tombstones any previously
// cached id that the listing no longer contains.
func FullRefresh(ctx context.Context, fetcher erp.Fetcher, w *Writer, t entity.Type, previouslyCachedIDs []string) (FullRefreshResult, error) {
	records, err := fetcher.FetchPublished(ctx, t)
	if err != nil {
		return FullRefreshResult{}, fmt.Errorf("ingest: full refresh fetch %s: %w", t, err)
	}

	result := FullRefreshResult{Type: t, TotalListed: len(records)}
	seen := make(map[string]struct{}, len(records))

	for _, raw := range records {
		seen[raw.EntityID] = struct{}{}
		wr, err := w.WriteOne(ctx, t, raw, "")
		if err != nil {
			return FullRefreshResult{}, err
		}
		if wr.Wrote {
			result.Written++
		} else {
			result.Unchanged++
		}
	}

	for _, id := range previouslyCachedIDs {
		if _, stillPublished := seen[id]; stillPublished {
			continue
		}
		wr, err := w.WriteTombstone(ctx, t, id)
		if err != nil {
			return FullRefreshResult{}, err
		}
		if wr.Wrote {
			result.Tombstoned++
		}
	}

	return result, nil
}

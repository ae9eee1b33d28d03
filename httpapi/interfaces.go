package httpapi

import (
	"context"

	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/erp"
	"github.com/atlasdevji/prowhey-middleware/ingest"
	"github.com/atlasdevji/prowhey-middleware/sync"
)

// SyncProcessor is the subset of *sync.Processor the sync handlers need.
type SyncProcessor interface {
	Process(ctx context.Context, req sync.Request) (sync.Response, error)
	ProcessFastSync(ctx context.Context, lastSync entity.Cursor, caller entity.CallerContext, limit int64) (sync.Response, error)
	ProcessMediumSync(ctx context.Context, lastSync entity.Cursor, caller entity.CallerContext, limit int64) (sync.Response, error)
	ProcessSlowSync(ctx context.Context, lastSync entity.Cursor, caller entity.CallerContext, limit int64) (sync.Response, error)
}

// IngestWriter is the subset of *ingest.Writer the resource read-through
// path needs.
type IngestWriter interface {
	WriteOne(ctx context.Context, t entity.Type, raw erp.RawRecord, idempotencyKey string) (ingest.WriteResult, error)
}

// WebhookHandler runs the webhook ingest path for one entity type/id.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, t entity.Type, entityID, idempotencyKey string) ([]ingest.WriteResult, error)
}

// ResourceReader serves cached entities and cache-miss read-through fetches.
type ResourceReader interface {
	GetEntity(ctx context.Context, t entity.Type, id string) (entity.CachedEntity, bool, error)
	ReadThrough(ctx context.Context, t entity.Type, id string) (ingest.WriteResult, error)
	ListQuery(ctx context.Context, t entity.Type, queryDigest string) (map[string]any, bool, error)
	CacheQuery(ctx context.Context, t entity.Type, queryDigest string, result map[string]any) error
	QueryThrough(ctx context.Context, t entity.Type, rawQuery, queryDigest string) (map[string]any, error)
}

// BulkRefresher triggers and reports on a bulk stock/price refresh pass.
type BulkRefresher interface {
	RefreshAll(ctx context.Context, t entity.Type) (BulkRefreshSummary, error)
}

// BulkRefreshSummary is the response shape for the bulk refresh endpoints.
type BulkRefreshSummary struct {
	TotalFetched int      `json:"totalFetched"`
	WithVariants int      `json:"withVariants"`
	Processed    int      `json:"processed"`
	Updated      int      `json:"updated"`
	Failed       int      `json:"failed"`
	Errors       []string `json:"errors,omitempty"`
}

// HealthChecker reports component health and sync-journal status.
type HealthChecker interface {
	CheckStore(ctx context.Context) error
	CheckERP(ctx context.Context) error
	StreamStatus(ctx context.Context, t entity.Type) (StreamStatus, error)
}

// StreamStatus summarizes one type's change journal for /health/sync-status.
type StreamStatus struct {
	Length  int64  `json:"length"`
	FirstID string `json:"firstId,omitempty"`
	LastID  string `json:"lastId,omitempty"`
}

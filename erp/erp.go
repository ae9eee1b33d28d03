// Package erp defines the boundary between this service and the back-office
// ERP it mirrors. Only the interfaces are part of the core; the wire format
// and concrete transport are external collaborators supplied by callers.
package erp

import (
	"context"
	"time"

	"github.com/atlasdevji/prowhey-middleware/entity"
)

// RawRecord is one untransformed record as returned by the ERP, list-shaped
// for entity types like hero/bundle/home where one ERP call yields several
// entity ids at once.
type RawRecord struct {
	EntityID string
	Data     map[string]any
}

// Fetcher pulls authoritative records from the ERP. FetchOne is used by
// webhook and read-through ingest; FetchPublished is used by the weekly full
// refresh to enumerate every currently-published entity id for a type.
type Fetcher interface {
	FetchOne(ctx context.Context, t entity.Type, entityID string) ([]RawRecord, error)
	FetchPublished(ctx context.Context, t entity.Type) ([]RawRecord, error)
	FetchQuery(ctx context.Context, t entity.Type, rawQuery string) ([]RawRecord, error)
}

// Transformer is the pure function that converts one raw ERP record into
// the app-ready payload the cache stores verbatim. Implementations may
// embed derived fields (computed prices, base64-inlined images fetched
// through an image cache) but must not perform cache or journal writes
// themselves — that remains the ingest path's responsibility so the write
// invariants stay enforced in one place.
type Transformer interface {
	Transform(ctx context.Context, t entity.Type, raw RawRecord) (map[string]any, error)
}

// Config holds the ERP client's connection and retry parameters.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// NotPublishedError distinguishes "the ERP no longer lists this entity" from
// a transport failure, letting the full refresh's tombstone logic and the
// retry policy treat the two differently.
type NotPublishedError struct {
	EntityID string
}

func (e *NotPublishedError) Error() string {
	return "erp: entity not published: " + e.EntityID
}

// Package entity defines the data model shared by every core component: the
// closed set of entity types, the cached-entity and journal-entry shapes,
// cursors, and the caller context used by audience filtering. Modeling
// entity types as a closed Go type lets the transformer and HTTP surface
// switch over them exhaustively instead of passing bare strings around.
package entity

import "fmt"

// Type is the closed set of entity types the cache and journal recognize.
type Type string

const (
	TypeProduct      Type = "product"
	TypePrice        Type = "price"
	TypeStock        Type = "stock"
	TypeHero         Type = "hero"
	TypeBundle       Type = "bundle"
	TypeHome         Type = "home"
	TypeView         Type = "view"
	TypeComment      Type = "comment"
	TypeUser         Type = "user"
	TypeNotification Type = "notification"
	TypeAnnouncement Type = "announcement"
	TypeMessage      Type = "message"
)

// AllTypes lists every recognized entity type, used by the scheduler's
// weekly full refresh and by secondary-index reconciliation.
var AllTypes = []Type{
	TypeProduct, TypePrice, TypeStock, TypeHero, TypeBundle, TypeHome,
	TypeView, TypeComment, TypeUser, TypeNotification, TypeAnnouncement, TypeMessage,
}

// FastTierTypes, MediumTierTypes, and SlowTierTypes are the frequency-tier
// partitions the sync processor's check-fast/medium/slow variants read.
var (
	FastTierTypes   = []Type{TypeView, TypeComment, TypeUser}
	MediumTierTypes = []Type{TypeStock, TypeNotification, TypeAnnouncement, TypeMessage}
	SlowTierTypes   = []Type{TypeProduct, TypePrice, TypeHero, TypeHome, TypeBundle}
)

// Valid reports whether t is one of the closed set of recognized types.
func (t Type) Valid() bool {
	for _, candidate := range AllTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// JournalStreamKey returns the store key for t's change journal.
func (t Type) JournalStreamKey() string {
	return fmt.Sprintf("%s_changes", t)
}

// CacheKey returns the store key for one cached entity.
func CacheKey(t Type, id string) string {
	return fmt.Sprintf("hash:%s:%s", t, id)
}

// QueryCacheKey returns the store key for a cached list/query response, keyed
// by a digest of the query string (see read-through ingest for query-shaped
// requests to hero/bundle/home and filtered /api/resource calls).
func QueryCacheKey(t Type, id, queryDigest string) string {
	return fmt.Sprintf("cache:%s:%s:query:%s", t, id, queryDigest)
}

// TombstoneHash is the sentinel data_hash value marking a deleted entity.
const TombstoneHash = "__deleted__"

// CachedEntity is the transformed-entity cache's stored shape: the app-ready
// payload plus the metadata fields needed for change detection.
type CachedEntity struct {
	Type      Type
	ID        string
	Payload   map[string]any
	DataHash  string
	Version   int64
	UpdatedAt int64 // epoch ms
}

// IsTombstone reports whether this entity represents a deletion.
func (c CachedEntity) IsTombstone() bool {
	return c.DataHash == TombstoneHash
}

// JournalEntry is one entry appended to a type's change journal.
type JournalEntry struct {
	ID             string // store-assigned "<ms>-<seq>"
	EntityID       string
	DataHash       string
	Version        int64
	IdempotencyKey string // empty means absent
	PrevHash       string // empty means absent

	// Audience fields, populated only for notification/announcement entries.
	TargetUsers         []string
	TargetGroups        []string
	TargetRegions       []string
	TargetProvinces     []string
	TargetCities        []string
	TargetDevices       []string
	TargetNonRegistered bool

	// Message-only fields: a message entry targets exactly one owning user
	// rather than a disjunctive target-set, and carries its own soft-delete
	// flag independent of cache tombstoning.
	OwnerUserID    string
	MessageDeleted bool
}

// Cursor maps an entity type to the last journal entry id a client has
// already consumed. Absence of a type key means "from the beginning"; the
// literal "0-0" is the explicit spelling of the same thing.
type Cursor map[Type]string

// EarliestID is the pseudo-id denoting "read from the start of the journal".
const EarliestID = "0-0"

// IDFor returns the cursor id for t, defaulting to EarliestID when absent.
func (c Cursor) IDFor(t Type) string {
	if c == nil {
		return EarliestID
	}
	if id, ok := c[t]; ok && id != "" {
		return id
	}
	return EarliestID
}

// CallerContext is the sync request's caller-identifying fields, consumed
// only by the audience filter.
type CallerContext struct {
	UserID       string
	UserGroups   []string
	UserRegion   string
	UserProvince string
	UserCity     string
	UserDeviceID string
	IsRegistered bool
}

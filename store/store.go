// Package store wraps the key-value/stream primitive the rest of the core
// is built on. Every other component — the transformed cache, the change
// journal, the audience filter's secondary indexes, the rate limiter — goes
// through this one adapter so a single client (Redis today) backs all
// durable state, matching the "no in-process authoritative state" model.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlasdevji/prowhey-middleware/config"
)

// Store is a thin wrapper over *redis.Client exposing exactly the primitives
// the core components need: string get/set/incr, hash field access, set
// membership, stream append/read/trim, TTL, and scan. Keeping the surface
// narrow means a test double only has to implement what's actually used.
type Store struct {
	client *redis.Client
}

// New dials the configured store and verifies connectivity with a short
// ping, mirroring the connect-then-ping pattern used by this codebase's
// other Redis-backed client.
func New(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("store: failed to connect: %w", err)
	}

	return &Store{client: client}, nil
}

// NewFromClient wraps an already-constructed *redis.Client, used by tests to
// point the store at a miniredis instance.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks store reachability within ctx's deadline, used by the health
// endpoint's tighter 2s budget.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// --- strings ---

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

// SetNX sets key to value with ttl only if it does not already exist,
// returning whether the set took effect. Used for the scheduler's
// distributed lock.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// --- hashes ---

// HSet atomically writes multiple fields of a hash object in one round
// trip — the "atomic set multiple fields" primitive the transformed cache
// relies on to avoid torn reads across an entity's fields.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	values := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}
	return s.client.HSet(ctx, key, values...).Err()
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	return s.client.HIncrBy(ctx, key, field, incr).Result()
}

func (s *Store) HExists(ctx context.Context, key, field string) (bool, error) {
	return s.client.HExists(ctx, key, field).Result()
}

// --- sets ---

func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	return s.client.SAdd(ctx, key, toInterfaceSlice(members)...).Err()
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	return s.client.SRem(ctx, key, toInterfaceSlice(members)...).Err()
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, key, member).Result()
}

func toInterfaceSlice(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// --- streams ---

// StreamEntry is one entry read back from a stream, as returned by XRange.
type StreamEntry struct {
	ID     string
	Values map[string]string
}

// XAdd appends fields as one stream entry and returns the store-assigned id.
func (s *Store) XAdd(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
}

// XRange reads entries in (start, "+"] order, i.e. strictly after start,
// bounded by count. Passing start="0-0" reads from the beginning.
func (s *Store) XRange(ctx context.Context, stream, start string, count int64) ([]StreamEntry, error) {
	from := "(" + start
	if start == "0-0" || start == "" {
		from = "-"
	}
	raw, err := s.client.XRangeN(ctx, stream, from, "+", count).Result()
	if err != nil {
		return nil, err
	}
	return toStreamEntries(raw), nil
}

// XRevRange reads the most recent `count` entries, newest first — used to
// scan the journal's idempotency-key window without walking the whole log.
func (s *Store) XRevRange(ctx context.Context, stream string, count int64) ([]StreamEntry, error) {
	raw, err := s.client.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, err
	}
	return toStreamEntries(raw), nil
}

func toStreamEntries(raw []redis.XMessage) []StreamEntry {
	entries := make([]StreamEntry, len(raw))
	for i, m := range raw {
		values := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			if sv, ok := v.(string); ok {
				values[k] = sv
			} else {
				values[k] = fmt.Sprintf("%v", v)
			}
		}
		entries[i] = StreamEntry{ID: m.ID, Values: values}
	}
	return entries
}

func (s *Store) XLen(ctx context.Context, stream string) (int64, error) {
	return s.client.XLen(ctx, stream).Result()
}

// XTrimMaxLenApprox trims stream down to approximately maxLen entries,
// letting Redis batch the trim for efficiency rather than trimming exactly.
func (s *Store) XTrimMaxLenApprox(ctx context.Context, stream string, maxLen int64) error {
	return s.client.XTrimMaxLenApprox(ctx, stream, maxLen, 0).Err()
}

// Scan performs one cursor-based SCAN iteration matching pattern, returning
// the next cursor (0 means iteration complete).
func (s *Store) Scan(ctx context.Context, cursor uint64, pattern string, count int64) (keys []string, nextCursor uint64, err error) {
	return s.client.Scan(ctx, cursor, pattern, count).Result()
}

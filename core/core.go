// Package core wires every collaborator package into one explicitly
// constructed value, replacing the module-level mutable singletons the
// teacher's own services use with a single Core created at process start
// and closed on shutdown (see DESIGN.md's note on this). main.go builds a
// Core and hands it to the HTTP surface and the scheduler; nothing else in
// the process holds durable state.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atlasdevji/prowhey-middleware/cache"
	"github.com/atlasdevji/prowhey-middleware/common"
	"github.com/atlasdevji/prowhey-middleware/config"
	"github.com/atlasdevji/prowhey-middleware/detector"
	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/erp"
	"github.com/atlasdevji/prowhey-middleware/httpapi"
	"github.com/atlasdevji/prowhey-middleware/imagecache"
	"github.com/atlasdevji/prowhey-middleware/index"
	"github.com/atlasdevji/prowhey-middleware/ingest"
	"github.com/atlasdevji/prowhey-middleware/journal"
	"github.com/atlasdevji/prowhey-middleware/notify"
	"github.com/atlasdevji/prowhey-middleware/scheduler"
	"github.com/atlasdevji/prowhey-middleware/store"
	syncproc "github.com/atlasdevji/prowhey-middleware/sync"
)

// Core bundles every component the HTTP surface and scheduler depend on.
type Core struct {
	Config *config.AllConfig
	Logger *common.ContextLogger

	Store       *store.Store
	Cache       *cache.Cache
	Journal     *journal.Journal
	Detector    *detector.Detector
	Sync        *syncproc.Processor
	Writer      *ingest.Writer
	Fetcher     *erp.HTTPFetcher
	Transformer erp.Transformer
	Index       *index.Index
	Images      *imagecache.ImageCache
	Dispatcher  *notify.Dispatcher
}

// New loads configuration and constructs every collaborator, dialing the
// store and verifying connectivity. Callers must call Close on shutdown.
func New(ctx context.Context) (*Core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("core: load config: %w", err)
	}

	common.Configure(common.LoggerConfig{
		Level:  common.LogLevel(cfg.Service.LogLevel),
		Format: cfg.Service.LogFormat,
	})
	logger := common.NewContextLogger(common.Logger, map[string]interface{}{
		"service": cfg.Service.Name,
	})

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("core: connect store: %w", err)
	}

	images, err := imagecache.New(ctx, cfg.ImageCache)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("core: build image cache: %w", err)
	}

	dispatcher, err := notify.New(cfg.Notification)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("core: build notification dispatcher: %w", err)
	}

	fetcher := erp.NewHTTPFetcher(erp.Config{
		BaseURL:    cfg.ERP.BaseURL,
		Timeout:    cfg.ERP.Timeout,
		MaxRetries: cfg.ERP.MaxRetries,
	})
	transformer := erp.NewDefaultTransformer(images, fetcher)

	c := cache.New(st)
	j := journal.New(st)
	d := detector.New(c)
	sp := syncproc.New(j, d)
	w := ingest.New(c, j, transformer, dispatcher)
	idx := index.New(st)

	return &Core{
		Config:      cfg,
		Logger:      logger,
		Store:       st,
		Cache:       c,
		Journal:     j,
		Detector:    d,
		Sync:        sp,
		Writer:      w,
		Fetcher:     fetcher,
		Transformer: transformer,
		Index:       idx,
		Images:      images,
		Dispatcher:  dispatcher,
	}, nil
}

// Close releases every held resource. Safe to call once, at shutdown.
func (c *Core) Close() error {
	if err := c.Dispatcher.Close(); err != nil {
		c.Logger.WithError(err).Warn("core: dispatcher close failed")
	}
	return c.Store.Close()
}

// HTTPDeps builds the httpapi.Deps the HTTP surface needs, wiring Core
// itself as every role httpapi's handlers depend on.
func (c *Core) HTTPDeps() httpapi.Deps {
	return httpapi.Deps{
		Sync:        c.Sync,
		Ingest:      c.Writer,
		Webhook:     c,
		Resource:    c,
		Bulk:        c,
		Health:      c,
		RateLimiter: httpapi.NewRateLimiter(c.Store, 120, time.Minute),
		Config:      c.Config.Server,
	}
}

// --- httpapi.WebhookHandler ---

func (c *Core) HandleWebhook(ctx context.Context, t entity.Type, entityID, idempotencyKey string) ([]ingest.WriteResult, error) {
	return ingest.Webhook(ctx, c.Fetcher, c.Writer, t, entityID, idempotencyKey)
}

// --- httpapi.ResourceReader ---

func (c *Core) GetEntity(ctx context.Context, t entity.Type, id string) (entity.CachedEntity, bool, error) {
	return c.Cache.Get(ctx, t, id)
}

func (c *Core) ReadThrough(ctx context.Context, t entity.Type, id string) (ingest.WriteResult, error) {
	return ingest.ReadThrough(ctx, c.Fetcher, c.Writer, t, id)
}

// queryCacheTTL bounds how long a cached `/api/resource` list query result
// is served before a fresh read-through is required.
const queryCacheTTL = 5 * time.Minute

func (c *Core) ListQuery(ctx context.Context, t entity.Type, queryDigest string) (map[string]any, bool, error) {
	raw, ok, err := c.Store.Get(ctx, entity.QueryCacheKey(t, string(t), queryDigest))
	if err != nil {
		return nil, false, fmt.Errorf("core: read query cache: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	var result map[string]any
	if err := decodeJSON(raw, &result); err != nil {
		return nil, false, fmt.Errorf("core: decode cached query result: %w", err)
	}
	return result, true, nil
}

func (c *Core) CacheQuery(ctx context.Context, t entity.Type, queryDigest string, result map[string]any) error {
	raw, err := encodeJSON(result)
	if err != nil {
		return fmt.Errorf("core: encode query result: %w", err)
	}
	return c.Store.Set(ctx, entity.QueryCacheKey(t, string(t), queryDigest), raw, queryCacheTTL)
}

// QueryThrough runs the query-shaped read-through fetch for a ListQuery
// cache miss: it pulls the matching records straight from the ERP,
// transforms each the same way the webhook/read-through paths do, and
// persists the combined result via CacheQuery before returning it, per
// §4.6's read-through contract applied to list/query requests.
func (c *Core) QueryThrough(ctx context.Context, t entity.Type, rawQuery, queryDigest string) (map[string]any, error) {
	records, err := c.Fetcher.FetchQuery(ctx, t, rawQuery)
	if err != nil {
		return nil, fmt.Errorf("core: query-through fetch: %w", err)
	}

	items := make([]map[string]any, 0, len(records))
	for _, raw := range records {
		payload, err := c.Transformer.Transform(ctx, t, raw)
		if err != nil {
			return nil, fmt.Errorf("core: query-through transform %s: %w", raw.EntityID, err)
		}
		items = append(items, payload)
	}

	result := map[string]any{"items": items}
	if err := c.CacheQuery(ctx, t, queryDigest, result); err != nil {
		return nil, fmt.Errorf("core: cache query result: %w", err)
	}
	return result, nil
}

// --- httpapi.BulkRefresher ---

func (c *Core) RefreshAll(ctx context.Context, t entity.Type) (httpapi.BulkRefreshSummary, error) {
	ids, err := c.cachedIDs(ctx, t)
	if err != nil {
		return httpapi.BulkRefreshSummary{}, err
	}

	result, err := ingest.FullRefresh(ctx, c.Fetcher, c.Writer, t, ids)
	if err != nil {
		return httpapi.BulkRefreshSummary{
			Failed: 1,
			Errors: []string{err.Error()},
		}, err
	}

	return httpapi.BulkRefreshSummary{
		TotalFetched: result.TotalListed,
		Processed:    result.Written + result.Unchanged + result.Tombstoned,
		Updated:      result.Written + result.Tombstoned,
	}, nil
}

// cachedIDs scans the store for every entity id currently cached under t,
// used as FullRefresh's "previously cached" set so ids the ERP listing no
// longer contains get tombstoned.
func (c *Core) cachedIDs(ctx context.Context, t entity.Type) ([]string, error) {
	prefix := fmt.Sprintf("hash:%s:", t)
	pattern := prefix + "*"

	var ids []string
	var cursor uint64
	for {
		keys, next, err := c.Store.Scan(ctx, cursor, pattern, 200)
		if err != nil {
			return nil, fmt.Errorf("core: scan cached ids for %s: %w", t, err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return ids, nil
}

// --- httpapi.HealthChecker ---

func (c *Core) CheckStore(ctx context.Context) error {
	return c.Store.Ping(ctx)
}

func (c *Core) CheckERP(ctx context.Context) error {
	return c.Fetcher.Ping(ctx)
}

func (c *Core) StreamStatus(ctx context.Context, t entity.Type) (httpapi.StreamStatus, error) {
	length, err := c.Journal.Length(ctx, t)
	if err != nil {
		return httpapi.StreamStatus{}, err
	}
	status := httpapi.StreamStatus{Length: length}
	if first, ok, err := c.Journal.First(ctx, t); err == nil && ok {
		status.FirstID = first.ID
	}
	if last, ok, err := c.Journal.Last(ctx, t); err == nil && ok {
		status.LastID = last.ID
	}
	return status, nil
}

// --- scheduled tasks ---

// SchedulerTasks builds the weekly full-refresh and daily analytics hand-off
// triggers described by §4.8; journal trimming runs inside the weekly
// full-refresh task rather than as a trigger of its own.
func (c *Core) SchedulerTasks() []scheduler.Task {
	return []scheduler.Task{
		{
			Name:      "weekly_full_refresh",
			LockKey:   "lock:scheduler:weekly_full_refresh",
			LockTTL:   c.Config.Scheduler.LockTTL,
			ShouldRun: scheduler.WeeklyFullRefreshShouldRun(c.Config.Scheduler),
			Run:       c.runWeeklyFullRefresh,
		},
		{
			Name:      "daily_analytics_aggregation",
			LockKey:   "lock:scheduler:daily_analytics",
			LockTTL:   c.Config.Scheduler.LockTTL,
			ShouldRun: scheduler.DailyAnalyticsShouldRun(c.Config.Scheduler),
			Run:       c.runDailyAnalyticsAggregation,
		},
	}
}

// runWeeklyFullRefresh reconciles every entity type against the ERP, then
// trims every journal and reconciles the location/registration indexes —
// the same write path ingest and webhooks use, so idle clients whose hash
// already matches see no new journal entries at all.
func (c *Core) runWeeklyFullRefresh(ctx context.Context) error {
	for _, t := range entity.AllTypes {
		ids, err := c.cachedIDs(ctx, t)
		if err != nil {
			return err
		}
		result, err := ingest.FullRefresh(ctx, c.Fetcher, c.Writer, t, ids)
		if err != nil {
			c.Logger.WithError(err).WithField("entity_type", string(t)).Error("scheduler: full refresh failed")
			continue
		}
		c.Logger.WithFields(map[string]interface{}{
			"entity_type": string(t),
			"written":     result.Written,
			"unchanged":   result.Unchanged,
			"tombstoned":  result.Tombstoned,
		}).Info("scheduler: full refresh complete")

		if err := c.Journal.Trim(ctx, t, journal.TrimPolicy{
			MaxLength:     c.Config.Store.StreamMaxLength,
			RetentionDays: c.Config.Store.RetentionDays,
		}); err != nil {
			c.Logger.WithError(err).WithField("entity_type", string(t)).Warn("scheduler: journal trim failed")
		}
	}
	return c.reconcileUserIndexes(ctx)
}

// ReconcileIndexes rebuilds the secondary indexes on demand, for the
// standalone indexreconciler binary run out-of-band from a cron/k8s
// CronJob rather than waiting for the weekly scheduler trigger.
func (c *Core) ReconcileIndexes(ctx context.Context) error {
	return c.reconcileUserIndexes(ctx)
}

// reconcileUserIndexes rebuilds the province/city/non-registered secondary
// indexes from the authoritative user cache, restoring the invariant after
// any crash mid-transition (§8's index-correctness property).
func (c *Core) reconcileUserIndexes(ctx context.Context) error {
	ids, err := c.cachedIDs(ctx, entity.TypeUser)
	if err != nil {
		return fmt.Errorf("core: list cached users for index reconcile: %w", err)
	}

	users := make([]index.UserAttributes, 0, len(ids))
	for _, id := range ids {
		cached, ok, err := c.Cache.Get(ctx, entity.TypeUser, id)
		if err != nil || !ok || cached.IsTombstone() {
			continue
		}
		users = append(users, index.UserAttributes{
			UserID:       id,
			Province:     stringField(cached.Payload, "province"),
			City:         stringField(cached.Payload, "city"),
			IsRegistered: boolField(cached.Payload, "is_registered"),
		})
	}
	return c.Index.Reconcile(ctx, users)
}

// runDailyAnalyticsAggregation hands the day's ingest/sync counters off to
// the analytics aggregation pipeline. The aggregation and dashboarding
// themselves are external collaborators (see §1's non-goals); this trigger
// only owns the scheduling contract.
func (c *Core) runDailyAnalyticsAggregation(ctx context.Context) error {
	c.Logger.Info("scheduler: daily analytics aggregation hand-off")
	return nil
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

func boolField(payload map[string]any, key string) bool {
	if payload == nil {
		return false
	}
	b, _ := payload[key].(bool)
	return b
}

func decodeJSON(raw string, out any) error {
	return json.Unmarshal([]byte(raw), out)
}

func encodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

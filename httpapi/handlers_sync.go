package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/errs"
	"github.com/atlasdevji/prowhey-middleware/metrics"
	"github.com/atlasdevji/prowhey-middleware/sync"
)

// syncCheckRequest is the wire shape for POST /api/sync/check and its
// tier-constrained variants.
type syncCheckRequest struct {
	LastSync     map[string]string `json:"lastSync"`
	EntityTypes  []string          `json:"entityTypes,omitempty"`
	Limit        int64             `json:"limit,omitempty"`
	UserID       string            `json:"userId,omitempty"`
	UserGroups   []string          `json:"userGroups,omitempty"`
	UserRegion   string            `json:"userRegion,omitempty"`
	UserProvince string            `json:"userProvince,omitempty"`
	UserCity     string            `json:"userCity,omitempty"`
	UserDeviceID string            `json:"userDeviceId,omitempty"`
	IsRegistered bool              `json:"isRegistered,omitempty"`
}

type syncCheckResponse struct {
	Success bool              `json:"success"`
	InSync  bool              `json:"inSync"`
	Updates []syncUpdateWire  `json:"updates,omitempty"`
	LastIDs map[string]string `json:"lastSync"`
}

type syncUpdateWire struct {
	Type     string         `json:"type"`
	EntityID string         `json:"entityId"`
	Kind     string         `json:"kind"`
	Payload  map[string]any `json:"payload,omitempty"`
	Version  int64          `json:"version"`
	IdempotencyKey string   `json:"idempotencyKey,omitempty"`
}

func registerSyncRoutes(e *echo.Echo, deps Deps) {
	e.POST("/api/sync/check", syncCheckHandler(deps, "all"))
	e.POST("/api/sync/check-fast", syncCheckHandler(deps, "fast"))
	e.POST("/api/sync/check-medium", syncCheckHandler(deps, "medium"))
	e.POST("/api/sync/check-slow", syncCheckHandler(deps, "slow"))
}

func syncCheckHandler(deps Deps, tier string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req syncCheckRequest
		if err := c.Bind(&req); err != nil {
			return errs.Validation("invalid sync request body", map[string]any{"parse_error": err.Error()})
		}

		cursor := entity.Cursor{}
		for t, id := range req.LastSync {
			cursor[entity.Type(t)] = id
		}

		caller := entity.CallerContext{
			UserID:       req.UserID,
			UserGroups:   req.UserGroups,
			UserRegion:   req.UserRegion,
			UserProvince: req.UserProvince,
			UserCity:     req.UserCity,
			UserDeviceID: req.UserDeviceID,
			IsRegistered: req.IsRegistered,
		}

		var resp sync.Response
		var err error
		switch tier {
		case "fast":
			resp, err = deps.Sync.ProcessFastSync(c.Request().Context(), cursor, caller, req.Limit)
		case "medium":
			resp, err = deps.Sync.ProcessMediumSync(c.Request().Context(), cursor, caller, req.Limit)
		case "slow":
			resp, err = deps.Sync.ProcessSlowSync(c.Request().Context(), cursor, caller, req.Limit)
		default:
			types := make([]entity.Type, 0, len(req.EntityTypes))
			for _, t := range req.EntityTypes {
				types = append(types, entity.Type(t))
			}
			resp, err = deps.Sync.Process(c.Request().Context(), sync.Request{
				LastSync: cursor, EntityTypes: types, Limit: req.Limit, Caller: caller,
			})
		}

		outcome := "updated"
		if err != nil {
			outcome = "error"
		} else if resp.InSync {
			outcome = "in_sync"
		}
		metrics.SyncRequestsTotal.WithLabelValues(tier, outcome).Inc()
		if err == nil {
			metrics.SyncUpdatesReturned.Observe(float64(len(resp.Updates)))
		}
		if err != nil {
			return errs.Internal("sync processing failed", err)
		}

		lastIDs := make(map[string]string, len(resp.LastIDs))
		for t, id := range resp.LastIDs {
			lastIDs[string(t)] = id
		}
		updates := make([]syncUpdateWire, 0, len(resp.Updates))
		for _, u := range resp.Updates {
			updates = append(updates, syncUpdateWire{
				Type:           string(u.Type),
				EntityID:       u.EntityID,
				Kind:           string(u.Kind),
				Payload:        u.Payload,
				Version:        u.Version,
				IdempotencyKey: u.IdempotencyKey,
			})
		}

		return c.JSON(http.StatusOK, syncCheckResponse{
			Success: true,
			InSync:  resp.InSync,
			Updates: updates,
			LastIDs: lastIDs,
		})
	}
}

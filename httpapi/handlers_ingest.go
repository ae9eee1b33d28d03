package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/errs"
	"github.com/atlasdevji/prowhey-middleware/metrics"
)

// webhookRequest is the wire shape for POST /api/webhooks/erpnext, per §6:
// the ERP names the changed doctype and, optionally, the specific record.
type webhookRequest struct {
	EntityType     string `json:"entity_type"`
	EntityID       string `json:"entity_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type webhookResponse struct {
	Success bool `json:"success"`
	Written int  `json:"written"`
}

func registerIngestRoutes(e *echo.Echo, deps Deps) {
	e.POST("/api/webhooks/erpnext", webhookHandler(deps))
}

func webhookHandler(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req webhookRequest
		if err := c.Bind(&req); err != nil {
			return errs.Validation("invalid webhook body", map[string]any{"parse_error": err.Error()})
		}
		t := entity.Type(req.EntityType)
		if !t.Valid() {
			return errs.Validation("unrecognized entity_type", map[string]any{"entity_type": req.EntityType})
		}

		results, err := deps.Webhook.HandleWebhook(c.Request().Context(), t, req.EntityID, req.IdempotencyKey)
		if err != nil {
			metrics.IngestWritesTotal.WithLabelValues(string(t), "error").Inc()
			return errs.Upstream("webhook ingest failed", err)
		}

		written := 0
		for _, r := range results {
			outcome := "no_op"
			switch {
			case r.Tombstone && r.Wrote:
				outcome = "tombstoned"
			case r.Wrote:
				outcome = "written"
				written++
			}
			metrics.IngestWritesTotal.WithLabelValues(string(t), outcome).Inc()
		}

		return c.JSON(http.StatusOK, webhookResponse{Success: true, Written: written})
	}
}

package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"github.com/atlasdevji/prowhey-middleware/entity"
)

var processStart = time.Now()

const (
	storeHealthDeadline = 2 * time.Second
	erpHealthDeadline    = 5 * time.Second
)

type healthResponse struct {
	Status     string                    `json:"status"`
	Components map[string]componentInfo `json:"components"`
	System     systemInfo                `json:"system"`
}

type componentInfo struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type systemInfo struct {
	Memory string `json:"memory"`
	Uptime string `json:"uptime"`
}

func registerHealthRoutes(e *echo.Echo, deps Deps) {
	e.GET("/health", healthHandler(deps))
	e.GET("/health/sync-status", syncStatusHandler(deps))
}

// healthHandler always answers 200, per §6: a degraded component is
// reported in the body rather than failing the load balancer's probe.
func healthHandler(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		components := map[string]componentInfo{
			"store": checkComponent(c.Request().Context(), storeHealthDeadline, deps.Health.CheckStore),
			"erp":   checkComponent(c.Request().Context(), erpHealthDeadline, deps.Health.CheckERP),
		}

		status := "healthy"
		for _, info := range components {
			if info.Status != "healthy" {
				status = "degraded"
			}
		}

		var memStats memoryStats
		memStats.read()

		return c.JSON(http.StatusOK, healthResponse{
			Status:     status,
			Components: components,
			System: systemInfo{
				Memory: humanize.Bytes(memStats.allocBytes),
				Uptime: time.Since(processStart).String(),
			},
		})
	}
}

func checkComponent(ctx context.Context, deadline time.Duration, check func(context.Context) error) componentInfo {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	if err := check(ctx); err != nil {
		return componentInfo{Status: "unhealthy", Error: err.Error()}
	}
	return componentInfo{Status: "healthy"}
}

type syncStatusResponse struct {
	Streams map[string]StreamStatus `json:"streams"`
}

func syncStatusHandler(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		streams := make(map[string]StreamStatus, len(entity.AllTypes))
		for _, t := range entity.AllTypes {
			status, err := deps.Health.StreamStatus(c.Request().Context(), t)
			if err != nil {
				streams[string(t)+"_changes"] = StreamStatus{}
				continue
			}
			streams[string(t)+"_changes"] = status
		}
		return c.JSON(http.StatusOK, syncStatusResponse{Streams: streams})
	}
}

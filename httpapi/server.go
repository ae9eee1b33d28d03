// Package httpapi exposes the sync, ingest, resource, and health endpoints
// over echo, the way the teacher wires its services: standard middleware
// stack, a uniform error shape, and a graceful-shutdown-aware server
// lifecycle.
package httpapi

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlasdevji/prowhey-middleware/config"
	"github.com/atlasdevji/prowhey-middleware/metrics"
)

// Deps bundles every collaborator a handler needs. Handlers read from this
// struct directly rather than closing over package-level singletons.
type Deps struct {
	Sync        SyncProcessor
	Ingest      IngestWriter
	Webhook     WebhookHandler
	Resource    ResourceReader
	Bulk        BulkRefresher
	Health      HealthChecker
	RateLimiter *RateLimiter
	Config      config.ServerConfig
}

// NewServer builds the echo instance with the full middleware stack and
// every route registered, ready for StartServer.
func NewServer(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = deps.Config.Debug
	e.HTTPErrorHandler = HTTPErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("10M"))
	if len(deps.Config.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: deps.Config.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		}))
	}
	e.Use(middleware.RequestID())
	e.Use(requestIDIntoContext())
	e.Use(deviceIDMiddleware())
	if deps.RateLimiter != nil {
		e.Use(deps.RateLimiter.Middleware())
	}

	registerSyncRoutes(e, deps)
	registerIngestRoutes(e, deps)
	registerResourceRoutes(e, deps)
	registerBulkRoutes(e, deps)
	registerHealthRoutes(e, deps)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
		metrics.Registry,
		promhttp.HandlerOpts{},
	)))

	return e
}

// StartServer runs e on the configured port, blocking until shutdown.
func StartServer(e *echo.Echo, cfg config.ServerConfig) error {
	s := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	log.Printf("httpapi: listening on %s", s.Addr)
	return e.StartServer(s)
}

// GracefulShutdown drains in-flight requests before returning, per cfg's
// shutdown deadline.
func GracefulShutdown(e *echo.Echo, cfg config.ServerConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return nil
}

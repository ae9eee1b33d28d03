package httpapi

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/erp"
	"github.com/atlasdevji/prowhey-middleware/errs"
)

type resourceResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Version int64          `json:"version"`
}

func registerResourceRoutes(e *echo.Echo, deps Deps) {
	e.GET("/api/resource/:doctype/:id", getResourceByIDHandler(deps))
	e.GET("/api/resource/:doctype", listResourceHandler(deps))
	e.GET("/api/hero", singletonHandler(deps, entity.TypeHero))
	e.GET("/api/bundle", singletonHandler(deps, entity.TypeBundle))
	e.GET("/api/home", singletonHandler(deps, entity.TypeHome))
}

// getResourceByIDHandler serves one cached entity, falling through to
// read-through ingest on a cache miss per §4.6's cache-miss contract.
func getResourceByIDHandler(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		t := entity.Type(c.Param("doctype"))
		if !t.Valid() {
			return errs.Validation("unrecognized doctype", map[string]any{"doctype": c.Param("doctype")})
		}
		id := c.Param("id")

		cached, found, err := deps.Resource.GetEntity(c.Request().Context(), t, id)
		if err != nil {
			return errs.Store("failed to read cache", err)
		}
		if found && !cached.IsTombstone() {
			return c.JSON(http.StatusOK, resourceResponse{Success: true, Data: cached.Payload, Version: cached.Version})
		}
		if found && cached.IsTombstone() {
			return errs.NotFound("entity has been deleted")
		}

		result, err := deps.Resource.ReadThrough(c.Request().Context(), t, id)
		if err != nil {
			if npe, ok := err.(*erp.NotPublishedError); ok {
				return errs.NotFound("entity not published: " + npe.EntityID)
			}
			return errs.Upstream("read-through fetch failed", err)
		}
		return c.JSON(http.StatusOK, resourceResponse{Success: true, Data: result.Payload, Version: result.Version})
	}
}

// listResourceHandler serves a query-shaped list, cached by an md5 digest of
// the raw query string per §6's `cache:<type>:<id>:query:<md5>` key shape.
func listResourceHandler(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		t := entity.Type(c.Param("doctype"))
		if !t.Valid() {
			return errs.Validation("unrecognized doctype", map[string]any{"doctype": c.Param("doctype")})
		}
		rawQuery := c.QueryString()
		digest := queryDigest(rawQuery)

		cached, found, err := deps.Resource.ListQuery(c.Request().Context(), t, digest)
		if err != nil {
			return errs.Store("failed to read query cache", err)
		}
		if found {
			return c.JSON(http.StatusOK, map[string]any{"success": true, "data": cached, "cached": true})
		}

		result, err := deps.Resource.QueryThrough(c.Request().Context(), t, rawQuery, digest)
		if err != nil {
			return errs.Upstream("query read-through fetch failed", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "data": result, "cached": false})
	}
}

func singletonHandler(deps Deps, t entity.Type) echo.HandlerFunc {
	return func(c echo.Context) error {
		cached, found, err := deps.Resource.GetEntity(c.Request().Context(), t, string(t))
		if err != nil {
			return errs.Store("failed to read cache", err)
		}
		if !found || cached.IsTombstone() {
			return errs.NotFound(string(t) + " not available")
		}
		return c.JSON(http.StatusOK, resourceResponse{Success: true, Data: cached.Payload, Version: cached.Version})
	}
}

func queryDigest(raw string) string {
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

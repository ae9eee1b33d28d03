package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/errs"
)

func registerBulkRoutes(e *echo.Echo, deps Deps) {
	e.POST("/api/stock/update-all", bulkRefreshHandler(deps, entity.TypeStock))
	e.POST("/api/price/update-all", bulkRefreshHandler(deps, entity.TypePrice))
}

// bulkRefreshHandler runs an on-demand full refresh for one type, returning
// the same summary shape the weekly scheduled refresh logs internally.
func bulkRefreshHandler(deps Deps, t entity.Type) echo.HandlerFunc {
	return func(c echo.Context) error {
		summary, err := deps.Bulk.RefreshAll(c.Request().Context(), t)
		if err != nil {
			return errs.Upstream("bulk refresh failed", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "result": summary})
	}
}

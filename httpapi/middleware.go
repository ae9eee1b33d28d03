package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/atlasdevji/prowhey-middleware/common"
	"github.com/atlasdevji/prowhey-middleware/errs"
	"github.com/atlasdevji/prowhey-middleware/store"
)

const (
	headerDeviceID  = "X-Device-ID"
	headerClientID  = "X-Client-ID"
	ctxKeyDeviceID  = "device_id"
)

// deviceIDMiddleware reads the caller's device id from X-Device-ID, falling
// back to X-Client-ID, and generates + echoes one back when both are
// absent, per §6's "every request carries a device identifier" contract.
func deviceIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			deviceID := c.Request().Header.Get(headerDeviceID)
			if deviceID == "" {
				deviceID = c.Request().Header.Get(headerClientID)
			}
			if deviceID == "" {
				deviceID = uuid.NewString()
			}
			c.Response().Header().Set(headerDeviceID, deviceID)
			c.Set(ctxKeyDeviceID, deviceID)

			ctx := common.WithDeviceID(c.Request().Context(), deviceID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func requestIDIntoContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
				c.Response().Header().Set(echo.HeaderXRequestID, requestID)
			}
			ctx := common.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func deviceIDFromContext(c echo.Context) string {
	if v, ok := c.Get(ctxKeyDeviceID).(string); ok {
		return v
	}
	return ""
}

// RateLimiter is the store-backed primary rate limiter described by §5:
// "rate-limit counters are store-backed so horizontal scaling is safe." On
// store failure it does not reject outright: it falls back to a per-process
// in-memory limiter, so requests keep flowing but remain locally limited.
type RateLimiter struct {
	store    *store.Store
	limit    int64
	window   time.Duration
	fallback *rate.Limiter
}

// NewRateLimiter builds a RateLimiter allowing up to limit requests per
// window per (deviceId, endpoint) pair. fallback is consulted only when the
// store itself is unreachable, so the service still degrades gracefully
// rather than becoming unlimited.
func NewRateLimiter(s *store.Store, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:    s,
		limit:    limit,
		window:   window,
		fallback: rate.NewLimiter(rate.Limit(limit)/rate.Limit(window.Seconds()), int(limit)),
	}
}

// Allow increments the counter for (deviceId, endpoint) and reports whether
// the request is within limit. When the store INCR errors, the decision is
// delegated to the in-memory fallback limiter instead (see DESIGN.md's
// rate-limit open question).
func (rl *RateLimiter) Allow(ctx context.Context, deviceID, endpoint string) bool {
	key := fmt.Sprintf("ratelimit:%s:%s", deviceID, endpoint)

	count, err := rl.store.Incr(ctx, key)
	if err != nil {
		return rl.fallback.Allow()
	}
	if count == 1 {
		_ = rl.store.Expire(ctx, key, rl.window)
	}
	return count <= rl.limit
}

// Middleware builds the echo middleware enforcing rl per request.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			deviceID := deviceIDFromContext(c)
			if !rl.Allow(c.Request().Context(), deviceID, c.Path()) {
				return errs.RateLimited("rate limit exceeded for this device and endpoint")
			}
			return next(c)
		}
	}
}

// errorResponse is the handler-visible error shape from §7.
type errorResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// HTTPErrorHandler translates an *errs.Error (or any other error) into the
// stable {success, error, code, message, details?} response shape.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	e, ok := errs.As(err)
	if !ok {
		if he, isHTTPErr := err.(*echo.HTTPError); isHTTPErr {
			e = &errs.Error{Kind: errs.KindInternal, Message: fmt.Sprintf("%v", he.Message)}
		} else {
			e = errs.Internal("internal server error", err)
		}
	}

	resp := errorResponse{
		Success: false,
		Error:   string(e.Kind),
		Code:    e.Code(),
		Message: e.Message,
		Details: e.Details,
	}
	if writeErr := c.JSON(e.HTTPStatus(), resp); writeErr != nil {
		c.Logger().Error(writeErr)
	}
}

var _ = http.StatusInternalServerError

package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/room-reservation/internal/ratelimit"
)

// RateLimit throttles each (route, client) pair with limiter.  A zero
// policy uses the limiter's own; X-RateLimit-Limit reports whichever
// applied.  Limiter failures let the request through.
func RateLimit(limiter ratelimit.Limiter, policy ratelimit.Config, logger *zap.Logger) echo.MiddlewareFunc {
	if limiter == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			endpoint := c.Request().Method + " " + c.Path()
			res, err := limiter.Check(c.Request().Context(), endpoint, clientID(c), policy)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("endpoint", endpoint), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				h.Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": res.RetryAfterSeconds,
				})
			}
			return next(c)
		}
	}
}

package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimiter limits requests per client IP with an in-memory token bucket.
// Liveness probes are never limited.
func RateLimiter(rps float64, logger *slog.Logger) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(rps),
		Burst:     max(1, int(math.Ceil(rps))),
		ExpiresIn: 3 * time.Minute,
	})
	logger = logger.With("component", "rate_limiter")

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz"
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			logger.Warn("rate limit exceeded",
				"ip", identifier,
				"path", c.Request().URL.Path,
			)
			return c.String(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

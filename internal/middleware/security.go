// Package middleware provides Echo middleware for logging, metrics,
// security headers and request body parsing.
package middleware

import (
	"github.com/labstack/echo/v4"

	"hawtio-proxy-go/internal/header"
)

// SecurityHeaders returns an Echo middleware that adds security headers
// to responses and strips hop-by-hop headers from requests.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Strip hop-by-hop headers from incoming request
			for _, h := range header.HopByHop {
				c.Request().Header.Del(h)
			}

			// Set before the handler runs: streamed responses commit
			// their headers before next returns.
			c.Response().Header().Set("X-Content-Type-Options", "nosniff")
			c.Response().Header().Set("X-Frame-Options", "DENY")

			return next(c)
		}
	}
}

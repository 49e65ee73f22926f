package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hawtio-proxy-go/internal/config"
	"hawtio-proxy-go/internal/metrics"
	"hawtio-proxy-go/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// m may be nil, in which case no metrics endpoint is served.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	var mw []echo.MiddlewareFunc
	if cfg.Proxy.ParseBody {
		mw = append(mw, middleware.ParseBody())
	}
	e.Any(cfg.Proxy.BasePath, proxy.Handle, mw...)
	e.Any(cfg.Proxy.BasePath+"/*", proxy.Handle, mw...)

	if m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}

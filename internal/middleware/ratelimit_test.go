package middleware_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"hawtio-proxy-go/internal/middleware"
)

func newLimitedEcho() *echo.Echo {
	e := echo.New()
	e.Use(middleware.RateLimiter(1, slog.New(slog.NewTextHandler(io.Discard, nil))))
	ok := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
	e.GET("/healthz", ok)
	e.Any("/proxy/*", ok)
	return e
}

func TestRateLimiter_Enabled(t *testing.T) {
	e := newLimitedEcho()

	// First request should succeed.
	req := httptest.NewRequest(http.MethodGet, "/proxy/http/localhost/8778/jolokia/", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", rec.Code, http.StatusOK)
	}

	// 1 rps with a burst of 1: a quick follow-up is rejected.
	got429 := false
	for n := 0; n < 10; n++ {
		req = httptest.NewRequest(http.MethodPost, "/proxy/http/localhost/8778/jolokia/", http.NoBody)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			got429 = true
			if rec.Body.String() != "rate limit exceeded" {
				t.Errorf("body = %q, want %q", rec.Body.String(), "rate limit exceeded")
			}
			break
		}
	}
	if !got429 {
		t.Error("expected at least one 429 response after burst, got none")
	}
}

func TestRateLimiter_SkipsHealthz(t *testing.T) {
	e := newLimitedEcho()

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, http.StatusOK)
		}
	}
}

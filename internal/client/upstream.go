// Package client provides the outbound HTTP client used to reach proxy targets.
package client

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"hawtio-proxy-go/internal/config"
	"hawtio-proxy-go/internal/metrics"
	"hawtio-proxy-go/internal/model"
)

// UpstreamClient sends requests to arbitrary http/https targets and hands
// back their responses unread, so bodies can be streamed.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
//
// There is deliberately no overall client timeout: it would cut off long
// streamed bodies. Connect, TLS handshake and time-to-headers are bounded;
// the body is bounded by the inbound request context.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	connectTimeout := time.Duration(cfg.Proxy.ConnectTimeoutSeconds) * time.Second

	transport := &http.Transport{
		MaxIdleConns:          cfg.Proxy.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Proxy.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: time.Duration(cfg.Proxy.ResponseTimeoutSeconds) * time.Second,
		DisableCompression:    true,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	if cfg.Proxy.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed JVM endpoints
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			// Redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the target.
// On success the caller owns the response body and must close it.
func (c *UpstreamClient) Do(req *http.Request) model.Result {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
	}

	if err != nil {
		return &model.TransportFailure{URI: req.URL.Redacted(), Err: err}
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}
}

// DoStream builds and executes a request whose body, if any, is streamed
// from body without buffering. contentLength is -1 when unknown.
// The provided context controls the lifetime of the whole exchange: when it
// is canceled (e.g. the client disconnects) the upstream request and any
// in-progress response body read are aborted.
func (c *UpstreamClient) DoStream(ctx context.Context, method, uri string, header http.Header, body io.Reader, contentLength int64) model.Result {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return &model.TransportFailure{URI: uri, Err: err}
	}
	req.Header = header
	if body != http.NoBody {
		req.ContentLength = contentLength
	}

	return c.Do(req)
}

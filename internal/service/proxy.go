// Package service implements the proxy relay policy: what is sent to the
// target and how its answer is translated for the browser.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"hawtio-proxy-go/internal/client"
	"hawtio-proxy-go/internal/header"
	"hawtio-proxy-go/internal/model"
	"hawtio-proxy-go/internal/target"
)

const (
	// HeaderJolokiaAuthorization carries credentials from the console's
	// client and is promoted to Authorization on the outbound request.
	HeaderJolokiaAuthorization = "X-Jolokia-Authorization"

	// challengePrefix replaces the "Basic" scheme of a 401 challenge so the
	// browser does not open its native login dialog for the target's realm.
	challengePrefix = `Hawtio original-scheme="Basic"`
)

// Upstream executes requests against proxy targets.
type Upstream interface {
	DoStream(ctx context.Context, method, uri string, header http.Header, body io.Reader, contentLength int64) model.Result
}

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	upstream Upstream
	logger   *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, logger *slog.Logger) *ProxyService {
	return newProxyService(c, logger)
}

func newProxyService(u Upstream, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		upstream: u,
		logger:   logger.With("component", "proxy_service"),
	}
}

// Forward sends a ProxyRequest to its target and returns either the
// unread *model.UpstreamResponse or a *model.TransportFailure.
// The caller is responsible for closing the response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) model.Result {
	uri := target.BuildURI(pr.Target)
	display := target.RedactedURI(pr.Target)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"uri", display,
	)

	out := OutboundHeaders(pr.Header)

	body, length, err := s.requestBody(pr, out)
	if err != nil {
		return &model.TransportFailure{URI: display, Err: err}
	}

	res := s.upstream.DoStream(pr.Ctx, pr.Method, uri, out.HTTP(), body, length)
	if f, ok := res.(*model.TransportFailure); ok {
		f.URI = display
	}
	return res
}

// OutboundHeaders derives the outbound request headers from the inbound ones:
// hop-by-hop headers and Referer are dropped, and X-Jolokia-Authorization,
// when present, becomes the Authorization header.
func OutboundHeaders(in http.Header) *header.Map {
	m := header.FromHTTP(in)
	m.DelHopByHop()
	m.Del("Host")
	m.Del("Referer")
	if v := m.Get(HeaderJolokiaAuthorization); v != "" {
		m.Set("Authorization", v)
	}
	return m
}

// requestBody decides how the request body is sent. Only POST carries a
// body re-encoded from ParsedBody; otherwise the inbound stream is passed
// through as is.
func (s *ProxyService) requestBody(pr *model.ProxyRequest, out *header.Map) (io.Reader, int64, error) {
	if pr.Method == http.MethodPost && pr.ParsedBody != nil {
		data, err := encodeParsedBody(pr.ParsedBody)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request body: %w", err)
		}
		out.Del("Content-Length")
		return bytes.NewReader(data), int64(len(data)), nil
	}
	if pr.Body == nil || pr.Body == http.NoBody {
		return nil, 0, nil
	}
	return pr.Body, pr.ContentLength, nil
}

// encodeParsedBody serializes a body decoded by the body parsing middleware.
// Form values go back to urlencoded form, raw bytes as they are, anything
// else as JSON.
func encodeParsedBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case url.Values:
		return []byte(b.Encode()), nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

// Classify maps an upstream status code to a relay outcome. 401, 403 and
// 429 are relayed without a body so the browser's own handling engages.
func Classify(status int) model.Outcome {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return model.OutcomeUpstreamError
	default:
		return model.OutcomeStreamed
	}
}

// ResponseHeaders returns the headers relayed to the caller for resp.
// For a 401, a Basic challenge is rewritten with RewriteChallenge.
func ResponseHeaders(resp *model.UpstreamResponse) *header.Map {
	m := header.FromHTTP(resp.Header)
	m.DelHopByHop()
	if resp.StatusCode == http.StatusUnauthorized {
		RewriteChallenge(m)
	}
	return m
}

// RewriteChallenge rewrites a WWW-Authenticate value starting with "Basic"
// (any case) to `Hawtio original-scheme="Basic"` followed by the rest of the
// original value. It reports whether a rewrite happened.
func RewriteChallenge(m *header.Map) bool {
	received := m.Key("WWW-Authenticate")
	if received == "" {
		return false
	}
	v := m.Get(received)
	if len(v) < len("Basic") || !strings.EqualFold(v[:len("Basic")], "Basic") {
		return false
	}
	rewritten := challengePrefix + v[len("Basic"):]
	m.Set("WWW-Authenticate", rewritten)
	m.Set(received, rewritten)
	return true
}

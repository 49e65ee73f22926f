package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"hawtio-proxy-go/internal/config"
	"hawtio-proxy-go/internal/metrics"
	"hawtio-proxy-go/internal/middleware"
	"hawtio-proxy-go/internal/model"
	"hawtio-proxy-go/internal/service"
	"hawtio-proxy-go/internal/target"
)

const streamBufferSize = 32 * 1024

// Forwarder dispatches a proxy request to its target.
type Forwarder interface {
	Forward(pr *model.ProxyRequest) model.Result
}

// ProxyHandler relays requests under the proxy base path to the target
// encoded in the path and streams the answer back.
type ProxyHandler struct {
	forwarder Forwarder
	basePath  string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(f Forwarder, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		forwarder: f,
		basePath:  cfg.Proxy.BasePath,
		metrics:   m,
		logger:    logger.With("component", "proxy_handler"),
	}
}

// Handle validates the proxy path and relays the request.
// An empty sub-path answers 200 without touching any target.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	sub := strings.TrimPrefix(req.URL.EscapedPath(), h.basePath)
	if sub == "" || sub == "/" {
		return c.NoContent(http.StatusOK)
	}

	tgt, err := target.Parse(sub, req.URL.RawQuery)
	if err != nil {
		return h.rejectPath(c, err)
	}

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Target:        tgt,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
		ParsedBody:    c.Get(middleware.ParsedBodyKey),
	}

	switch res := h.forwarder.Forward(pr).(type) {
	case *model.UpstreamResponse:
		return h.relay(c, res, target.RedactedURI(tgt))
	case *model.TransportFailure:
		return h.fail(c, res.URI, res.Err)
	default:
		return h.fail(c, target.RedactedURI(tgt), fmt.Errorf("unexpected relay result %T", res))
	}
}

func (h *ProxyHandler) rejectPath(c echo.Context, err error) error {
	var segErr *target.SegmentError
	switch {
	case errors.As(err, &segErr) && errors.Is(err, target.ErrInvalidProtocol):
		return c.String(http.StatusNotAcceptable, "Invalid protocol: "+segErr.Segment)
	case errors.As(err, &segErr) && errors.Is(err, target.ErrInvalidPort):
		return c.String(http.StatusNotAcceptable, "Invalid port number: "+segErr.Segment)
	default:
		return echo.ErrNotFound
	}
}

// relay writes resp to the caller. 401/403/429 are answered with status and
// headers only; everything else is streamed chunk by chunk, flushing each,
// so memory use stays bounded by the buffer and a slow caller slows the
// upstream read.
func (h *ProxyHandler) relay(c echo.Context, resp *model.UpstreamResponse, uri string) error {
	defer func() { _ = resp.Body.Close() }()

	res := c.Response()
	outcome := service.Classify(resp.StatusCode)
	headers := service.ResponseHeaders(resp)

	commit := func() {
		dst := res.Header()
		for _, k := range headers.Keys() {
			dst.Del(k)
			for _, v := range headers.Values(k) {
				dst.Add(k, v)
			}
		}
		if outcome == model.OutcomeUpstreamError {
			// No body follows, so the upstream framing no longer applies.
			dst.Del(echo.HeaderContentLength)
		}
		res.WriteHeader(resp.StatusCode)
	}

	if outcome == model.OutcomeUpstreamError {
		h.logger.Info("upstream refused request",
			"uri", uri,
			"status", resp.StatusCode,
		)
		commit()
		h.recordOutcome(outcome)
		return nil
	}

	buf := make([]byte, streamBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if !res.Committed {
				commit()
			}
			if _, werr := res.Write(buf[:n]); werr != nil {
				// The caller is gone; returning closes the upstream body.
				h.logger.Debug("client write failed", "uri", uri, "err", werr)
				h.recordOutcome(outcome)
				return nil
			}
			res.Flush()
			if h.metrics != nil {
				h.metrics.RelayBytes.Add(float64(n))
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return h.abortStream(c, uri, rerr)
		}
	}

	if !res.Committed {
		commit()
	}
	h.recordOutcome(outcome)
	return nil
}

// abortStream handles an upstream read failure during streaming. Before
// anything was sent the caller gets the usual 500; afterwards the connection
// is torn down so the truncated body cannot be mistaken for a complete one.
func (h *ProxyHandler) abortStream(c echo.Context, uri string, err error) error {
	if !c.Response().Committed {
		return h.fail(c, uri, err)
	}

	h.recordOutcome(model.OutcomeLocalFailure)
	if c.Request().Context().Err() != nil {
		h.logger.Debug("client disconnected mid-stream", "uri", uri)
		return nil
	}
	h.logger.Error("upstream failed mid-stream",
		"uri", uri,
		"err", err,
		"bytes_sent", c.Response().Size,
	)
	panic(http.ErrAbortHandler)
}

// fail answers 500 with a plain-text description of the failure.
func (h *ProxyHandler) fail(c echo.Context, uri string, err error) error {
	h.logger.Error("proxy error",
		"uri", uri,
		"err", err,
	)
	h.recordOutcome(model.OutcomeLocalFailure)
	return c.String(http.StatusInternalServerError, fmt.Sprintf(`error proxying to "%s: %v"`, uri, err))
}

func (h *ProxyHandler) recordOutcome(o model.Outcome) {
	if h.metrics != nil {
		h.metrics.RelayOutcomes.WithLabelValues(string(o)).Inc()
	}
}

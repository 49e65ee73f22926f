package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"hawtio-proxy-go/internal/header"
	"hawtio-proxy-go/internal/model"
)

// recordingUpstream captures what Forward dispatches.
type recordingUpstream struct {
	method string
	uri    string
	header http.Header
	body   string
	length int64
	result model.Result
}

func (u *recordingUpstream) DoStream(_ context.Context, method, uri string, h http.Header, body io.Reader, contentLength int64) model.Result {
	u.method = method
	u.uri = uri
	u.header = h
	u.length = contentLength
	if body != nil {
		b, _ := io.ReadAll(body)
		u.body = string(b)
	}
	if u.result != nil {
		return u.result
	}
	return &model.UpstreamResponse{StatusCode: http.StatusOK, Header: http.Header{}, Body: http.NoBody}
}

func newTestService(u Upstream) *ProxyService {
	return newProxyService(u, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func jolokiaTarget() model.Target {
	return model.Target{
		Protocol: "http",
		Hostname: "localhost",
		Port:     8778,
		Path:     "/jolokia/",
		Query:    model.Query{{Key: "maxDepth", Value: "7"}},
	}
}

func TestForward_HeaderStripAndPromote(t *testing.T) {
	up := &recordingUpstream{}
	s := newTestService(up)

	in := http.Header{
		"Referer":                 {"http://console.local/hawtio/jmx"},
		"X-Jolokia-Authorization": {"Basic YWRtaW46YWRtaW4="},
		"Authorization":           {"Bearer console-session"},
		"Accept":                  {"application/json"},
		"Connection":              {"keep-alive"},
	}
	s.Forward(&model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodGet,
		Target: jolokiaTarget(),
		Header: in,
		Body:   http.NoBody,
	})

	if up.uri != "http://localhost:8778/jolokia/?maxDepth=7" {
		t.Errorf("uri = %q", up.uri)
	}
	if v := up.header.Get("Referer"); v != "" {
		t.Errorf("Referer forwarded: %q", v)
	}
	if v := up.header.Get("Authorization"); v != "Basic YWRtaW46YWRtaW4=" {
		t.Errorf("Authorization = %q, want promoted X-Jolokia-Authorization", v)
	}
	if v := up.header.Get("Accept"); v != "application/json" {
		t.Errorf("Accept = %q, want forwarded", v)
	}
	if v := up.header.Get("Connection"); v != "" {
		t.Errorf("Connection forwarded: %q", v)
	}
	if in.Get("Referer") == "" {
		t.Error("inbound headers must not be modified")
	}
}

func TestForward_NoPromotionWithoutCustomHeader(t *testing.T) {
	up := &recordingUpstream{}
	s := newTestService(up)

	s.Forward(&model.ProxyRequest{
		Ctx:    context.Background(),
		Method: http.MethodGet,
		Target: jolokiaTarget(),
		Header: http.Header{"Authorization": {"Basic b3JpZzpvcmln"}},
	})

	if v := up.header.Get("Authorization"); v != "Basic b3JpZzpvcmln" {
		t.Errorf("Authorization = %q, want original", v)
	}
}

func TestForward_StreamsBody(t *testing.T) {
	up := &recordingUpstream{}
	s := newTestService(up)

	s.Forward(&model.ProxyRequest{
		Ctx:           context.Background(),
		Method:        http.MethodPost,
		Target:        jolokiaTarget(),
		Header:        http.Header{"Content-Type": {"text/json"}},
		Body:          io.NopCloser(strings.NewReader(`{"type":"read"}`)),
		ContentLength: 15,
	})

	if up.body != `{"type":"read"}` {
		t.Errorf("body = %q", up.body)
	}
	if up.length != 15 {
		t.Errorf("length = %d, want 15", up.length)
	}
}

func TestForward_ParsedBody(t *testing.T) {
	tests := []struct {
		name   string
		method string
		parsed any
		want   string
	}{
		{"json object", http.MethodPost, map[string]any{"type": "version"}, `{"type":"version"}`},
		{"json array", http.MethodPost, []any{map[string]any{"type": "version"}}, `[{"type":"version"}]`},
		{"form values", http.MethodPost, url.Values{"a": {"1"}, "b": {"x y"}}, "a=1&b=x+y"},
		{"raw bytes", http.MethodPost, []byte("raw"), "raw"},
		{"ignored for PUT", http.MethodPut, map[string]any{"type": "version"}, "stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &recordingUpstream{}
			s := newTestService(up)

			s.Forward(&model.ProxyRequest{
				Ctx:           context.Background(),
				Method:        tt.method,
				Target:        jolokiaTarget(),
				Header:        http.Header{"Content-Length": {"999"}},
				Body:          io.NopCloser(strings.NewReader("stream")),
				ContentLength: 6,
				ParsedBody:    tt.parsed,
			})

			if up.body != tt.want {
				t.Errorf("body = %q, want %q", up.body, tt.want)
			}
			if up.length != int64(len(tt.want)) {
				t.Errorf("length = %d, want %d", up.length, len(tt.want))
			}
		})
	}
}

func TestForward_ParsedBodyEncodeError(t *testing.T) {
	up := &recordingUpstream{}
	s := newTestService(up)

	res := s.Forward(&model.ProxyRequest{
		Ctx:        context.Background(),
		Method:     http.MethodPost,
		Target:     jolokiaTarget(),
		Header:     http.Header{},
		ParsedBody: map[string]any{"bad": make(chan int)},
	})

	if _, ok := res.(*model.TransportFailure); !ok {
		t.Fatalf("Forward() = %#v, want *model.TransportFailure", res)
	}
	if up.uri != "" {
		t.Error("upstream should not be called when the body cannot be encoded")
	}
}

func TestForward_TransportFailureURIRedacted(t *testing.T) {
	up := &recordingUpstream{result: &model.TransportFailure{URI: "raw", Err: errors.New("connection refused")}}
	s := newTestService(up)

	tgt := jolokiaTarget()
	tgt.Username, tgt.Password = "admin", "s3cret"
	res := s.Forward(&model.ProxyRequest{Ctx: context.Background(), Method: http.MethodGet, Target: tgt, Header: http.Header{}})

	f, ok := res.(*model.TransportFailure)
	if !ok {
		t.Fatalf("Forward() = %#v, want *model.TransportFailure", res)
	}
	if !strings.Contains(up.uri, "admin:s3cret@") {
		t.Errorf("dispatched uri = %q, want embedded credentials", up.uri)
	}
	if strings.Contains(f.URI, "s3cret") {
		t.Errorf("failure URI = %q leaks password", f.URI)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   model.Outcome
	}{
		{200, model.OutcomeStreamed},
		{204, model.OutcomeStreamed},
		{302, model.OutcomeStreamed},
		{400, model.OutcomeStreamed},
		{401, model.OutcomeUpstreamError},
		{403, model.OutcomeUpstreamError},
		{404, model.OutcomeStreamed},
		{429, model.OutcomeUpstreamError},
		{500, model.OutcomeStreamed},
		{503, model.OutcomeStreamed},
	}
	for _, tt := range tests {
		if got := Classify(tt.status); got != tt.want {
			t.Errorf("Classify(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestRewriteChallenge(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
		ok    bool
	}{
		{"basic realm", `Basic realm="test"`, `Hawtio original-scheme="Basic" realm="test"`, true},
		{"lowercase scheme", `basic realm="jolokia"`, `Hawtio original-scheme="Basic" realm="jolokia"`, true},
		{"spacing preserved", `Basic   realm="x", charset="UTF-8"`, `Hawtio original-scheme="Basic"   realm="x", charset="UTF-8"`, true},
		{"bare scheme", `Basic`, `Hawtio original-scheme="Basic"`, true},
		{"bearer untouched", `Bearer realm="x"`, `Bearer realm="x"`, false},
		{"short value", `Bas`, `Bas`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m header.Map
			m.Set("www-authenticate", tt.value)

			if ok := RewriteChallenge(&m); ok != tt.ok {
				t.Errorf("RewriteChallenge() = %v, want %v", ok, tt.ok)
			}
			if got := m.Get("WWW-Authenticate"); got != tt.want {
				t.Errorf("WWW-Authenticate = %q, want %q", got, tt.want)
			}
			if m.Len() != 1 {
				t.Errorf("Len() = %d, want a single challenge header", m.Len())
			}
		})
	}
}

func TestRewriteChallenge_Missing(t *testing.T) {
	var m header.Map
	if RewriteChallenge(&m) {
		t.Error("RewriteChallenge() = true without a challenge header")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestResponseHeaders(t *testing.T) {
	resp := &model.UpstreamResponse{
		StatusCode: http.StatusUnauthorized,
		Header: http.Header{
			"Www-Authenticate":  {`Basic realm="test"`},
			"Content-Type":      {"text/html"},
			"Transfer-Encoding": {"chunked"},
		},
	}
	m := ResponseHeaders(resp)

	if got := m.Get("WWW-Authenticate"); got != `Hawtio original-scheme="Basic" realm="test"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}
	if m.Has("Transfer-Encoding") {
		t.Error("Transfer-Encoding should be dropped")
	}
	if got := m.Get("Content-Type"); got != "text/html" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestResponseHeaders_OnlyRewritesOn401(t *testing.T) {
	resp := &model.UpstreamResponse{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Www-Authenticate": {`Basic realm="test"`}},
	}
	if got := ResponseHeaders(resp).Get("WWW-Authenticate"); got != `Basic realm="test"` {
		t.Errorf("WWW-Authenticate = %q, want unchanged", got)
	}
}

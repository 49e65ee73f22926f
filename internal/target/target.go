// Package target decodes proxy paths into targets and builds target URIs.
package target

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"hawtio-proxy-go/internal/model"
)

var (
	// ErrInvalidProtocol is returned for a protocol other than http or https.
	ErrInvalidProtocol = errors.New("invalid protocol")

	// ErrInvalidPort is returned for a port segment that is not a base-10 port number.
	ErrInvalidPort = errors.New("invalid port number")

	// ErrIncompletePath is returned when the path lacks the proto/host/port segments.
	ErrIncompletePath = errors.New("incomplete proxy path")
)

const redactedPassword = "xxxxx"

// SegmentError reports a path segment that failed validation.
type SegmentError struct {
	Err     error // ErrInvalidProtocol or ErrInvalidPort
	Segment string
}

func (e *SegmentError) Error() string {
	return e.Err.Error() + ": " + e.Segment
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// ParseProtocol validates and lowercases a protocol segment.
func ParseProtocol(s string) (string, error) {
	p := strings.ToLower(s)
	if p != "http" && p != "https" {
		return "", &SegmentError{Err: ErrInvalidProtocol, Segment: s}
	}
	return p, nil
}

// ParsePort parses a port segment. Only plain decimal digits in 0-65535 are accepted.
func ParsePort(s string) (int, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, &SegmentError{Err: ErrInvalidPort, Segment: s}
	}
	return int(n), nil
}

// Parse decodes an escaped sub-path of the form /{proto}/{host}/{port}[/{rest...}]
// and a raw query string into a Target. The returned error wraps
// ErrIncompletePath, or is a *SegmentError.
func Parse(escapedPath, rawQuery string) (model.Target, error) {
	segs := strings.SplitN(strings.TrimPrefix(escapedPath, "/"), "/", 4)
	if len(segs) < 3 || segs[0] == "" || segs[1] == "" {
		return model.Target{}, fmt.Errorf("%w: %q", ErrIncompletePath, escapedPath)
	}

	proto, err := ParseProtocol(unescape(segs[0]))
	if err != nil {
		return model.Target{}, err
	}
	port, err := ParsePort(unescape(segs[2]))
	if err != nil {
		return model.Target{}, err
	}

	path := "/"
	if len(segs) == 4 {
		path += segs[3]
	}

	return model.Target{
		Protocol: proto,
		Hostname: unescape(segs[1]),
		Port:     port,
		Path:     path,
		Query:    ParseQuery(rawQuery),
	}, nil
}

// ParseQuery splits a raw query string into its parameters, keeping their order.
// Pairs that fail to unescape are kept verbatim.
func ParseQuery(raw string) model.Query {
	if raw == "" {
		return nil
	}
	var q model.Query
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		q = append(q, model.QueryParam{Key: unescapeQuery(k), Value: unescapeQuery(v)})
	}
	return q
}

// EncodeQuery serializes q in order as key=value pairs joined by "&".
func EncodeQuery(q model.Query) string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// BuildURI returns the fully qualified URI for t:
// proto://[user:pass@]host:port/path[?query].
func BuildURI(t model.Target) string {
	return build(t, t.Password)
}

// RedactedURI is BuildURI with the password masked, for logging.
func RedactedURI(t model.Target) string {
	return build(t, redactedPassword)
}

func build(t model.Target, password string) string {
	var b strings.Builder
	b.WriteString(t.Protocol)
	b.WriteString("://")
	if t.Username != "" && t.Password != "" {
		b.WriteString(url.UserPassword(t.Username, password).String())
		b.WriteByte('@')
	}
	b.WriteString(t.Hostname)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(t.Port))
	if !strings.HasPrefix(t.Path, "/") {
		b.WriteByte('/')
	}
	b.WriteString(t.Path)
	if len(t.Query) > 0 {
		b.WriteByte('?')
		b.WriteString(EncodeQuery(t.Query))
	}
	return b.String()
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

func unescapeQuery(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// Package model defines shared types for the proxy.
package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// QueryParam is a single key=value pair of a query string.
type QueryParam struct {
	Key   string
	Value string
}

// Query is an ordered list of query parameters. Repeated keys appear as
// repeated entries in their original position.
type Query []QueryParam

// Target describes where a proxied request is headed. It is decoded from the
// inbound path /{proto}/{host}/{port}/{rest...} plus its query string.
type Target struct {
	Protocol string // "http" or "https", lowercase
	Hostname string
	Port     int
	Path     string // always rooted at "/"
	Query    Query

	// Username and Password are embedded in the URI only when both are set.
	Username string
	Password string
}

// ProxyRequest represents a client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	Target Target
	Header http.Header
	Body   io.ReadCloser

	// ContentLength of Body, or -1 when unknown.
	ContentLength int64

	// ParsedBody holds a request body that was already consumed and decoded
	// by body parsing middleware. When non-nil, Body must not be read.
	ParsedBody any
}

// Result is the outcome of dispatching a request upstream. It is either
// *UpstreamResponse or *TransportFailure.
type Result interface {
	isResult()
}

// UpstreamResponse is the response received from the target, with its body
// not yet read.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

func (*UpstreamResponse) isResult() {}

// TransportFailure means no HTTP response was obtained from the target.
type TransportFailure struct {
	URI string
	Err error
}

func (*TransportFailure) isResult() {}

func (f *TransportFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.URI, f.Err)
}

func (f *TransportFailure) Unwrap() error {
	return f.Err
}

// Outcome classifies how a relayed request was answered.
type Outcome string

const (
	OutcomeStreamed      Outcome = "streamed-success"
	OutcomeUpstreamError Outcome = "streamed-upstream-error"
	OutcomeLocalFailure  Outcome = "local-failure"
)

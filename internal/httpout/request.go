// Package httpout implements the outbound HTTP dispatch pipeline: policy
// check, optional interception, self-origin rewriting, guarded connect, TLS,
// and HTTP/1.1 send with individually bounded phases.
package httpout

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Default phase timeouts, applied when the request config leaves one unset.
const (
	DefaultConnectTimeout      = 60 * time.Second
	DefaultFirstByteTimeout    = 60 * time.Second
	DefaultBetweenBytesTimeout = 60 * time.Second
)

// RequestConfig bounds each suspension point of one outgoing request.
type RequestConfig struct {
	// UseTLS is derived from the URL scheme for absolute requests and from
	// the self origin for relative ones; callers rarely set it directly.
	UseTLS bool

	ConnectTimeout      time.Duration
	FirstByteTimeout    time.Duration
	BetweenBytesTimeout time.Duration
}

func (c RequestConfig) withDefaults() RequestConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.FirstByteTimeout <= 0 {
		c.FirstByteTimeout = DefaultFirstByteTimeout
	}
	if c.BetweenBytesTimeout <= 0 {
		c.BetweenBytesTimeout = DefaultBetweenBytesTimeout
	}
	return c
}

// Request is the outgoing request descriptor. It is mutated in place by
// self-origin rewriting and interception; ownership transfers to the
// pipeline once Send is called.
type Request struct {
	Method string
	URL    string // absolute, or relative for self requests
	Header http.Header
	Body   io.ReadCloser

	// ContentLength is the body length when known; zero with a non-nil Body
	// sends chunked.
	ContentLength int64

	Config RequestConfig
}

// Response packages the status and headers together with a body stream whose
// reads are bounded by the between-bytes timeout.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// Interceptor may observe and mutate a request before any network activity,
// or substitute a response entirely (short-circuiting dispatch). The host
// uses this to serve self-calls from an in-process handler without a real
// network round trip.
//
// Returning (nil, nil) lets the pipeline continue with the (possibly
// mutated) request.
type Interceptor interface {
	Intercept(ctx context.Context, req *Request) (*Response, error)
}

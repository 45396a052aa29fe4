package httpout

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/gatehouse-host/gatehouse/internal/outbound"
)

// selfSchemes are the candidate schemes checked when a guest issues a
// relative request.
var selfSchemes = []string{"http", "https"}

// Client dispatches outbound HTTP requests for one guest instance.
type Client struct {
	inst        *outbound.Instance
	interceptor Interceptor
	logger      zerolog.Logger

	// shutdown releases every connection still held by an unconsumed
	// response body when the instance tears down.
	shutdown  chan struct{}
	closeOnce sync.Once
}

// NewClient creates the HTTP dispatch client for an instance. interceptor
// may be nil.
func NewClient(inst *outbound.Instance, interceptor Interceptor) *Client {
	return &Client{
		inst:        inst,
		interceptor: interceptor,
		logger:      inst.Logger().With().Str("backend", "http").Logger(),
		shutdown:    make(chan struct{}),
	}
}

// Scheme implements outbound.Backend.
func (c *Client) Scheme() string { return "https" }

// Close implements outbound.Backend. Connections whose response bodies were
// abandoned without a Close are still parked in driver goroutines; signaling
// shutdown makes each driver close its socket and exit. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })
	return nil
}

// Send runs the dispatch pipeline for one request: authorize, rewrite
// relative URIs against the self origin, offer the request to the
// interceptor, then resolve, connect, and exchange HTTP/1.1 over the
// (possibly TLS-wrapped) stream.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := c.inst.Tracer().Start(ctx, "outbound_http.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL),
		))
	defer span.End()

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, &outbound.HostError{
			Code:    outbound.CodeInvalidAddress,
			Message: "invalid request URI",
			Details: err.Error(),
		}
	}

	if u.Scheme != "" && u.Host != "" {
		if err := c.inst.Authorize(req.URL, "https"); err != nil {
			return nil, err
		}
		req.Config.UseTLS = u.Scheme == "https"
	} else {
		u, err = c.rewriteSelfRequest(ctx, req, u)
		if err != nil {
			return nil, err
		}
	}

	if c.interceptor != nil {
		resp, err := c.interceptor.Intercept(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			span.SetAttributes(attribute.Bool("http.intercepted", true))
			return resp, nil
		}
		// The interceptor may have rewritten the URL.
		u, err = url.Parse(req.URL)
		if err != nil || u.Host == "" {
			return nil, outbound.Errf(outbound.CodeInvalidAddress, "interceptor produced invalid URI %q", req.URL)
		}
	}

	resp, err := c.dispatch(ctx, req, u)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	return resp, nil
}

// rewriteSelfRequest authorizes a relative request and rewrites it against
// the instance's self origin, injecting the Host header and the distributed
// tracing context.
func (c *Client) rewriteSelfRequest(ctx context.Context, req *Request, u *url.URL) (*url.URL, error) {
	if err := c.inst.AllowedHosts().AuthorizeRelative(selfSchemes); err != nil {
		return nil, &outbound.HostError{
			Code:    outbound.CodeDenied,
			Message: "relative request not permitted",
			Details: err.Error(),
		}
	}

	origin := c.inst.SelfOrigin()
	if origin == nil {
		c.logger.Error().Str("uri", req.URL).Msg("cannot dispatch relative request; no self origin configured")
		return nil, outbound.Errf(outbound.CodeInvalidAddress, "relative URI with no self origin configured")
	}

	req.Config.UseTLS = origin.UseTLS()
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Host", origin.HostHeader())
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(req.Header))

	req.URL = origin.URL(u.RequestURI())
	rewritten, err := url.Parse(req.URL)
	if err != nil {
		return nil, outbound.Errf(outbound.CodeInvalidAddress, "rewritten self URI %q is invalid", req.URL)
	}
	return rewritten, nil
}

// dispatch performs the network half of the pipeline: resolve and connect
// within the connect timeout, TLS handshake if requested, then send and
// await the status line within the first-byte timeout.
func (c *Client) dispatch(ctx context.Context, req *Request, u *url.URL) (*Response, error) {
	cfg := req.Config.withDefaults()

	host := u.Hostname()
	if host == "" {
		return nil, outbound.Errf(outbound.CodeInvalidAddress, "request URI %q has no host", req.URL)
	}
	port := u.Port()
	if port == "" {
		if cfg.UseTLS {
			port = "443"
		} else {
			port = "80"
		}
	}
	authority := net.JoinHostPort(host, port)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.inst.Dialer().DialContext(connectCtx, "tcp", authority)
	if err != nil {
		return nil, classifyDialError(err)
	}

	if cfg.UseTLS {
		tlsConn := tls.Client(conn, c.inst.TLSConfigs().ClientConfig(host))
		if err := tlsConn.HandshakeContext(connectCtx); err != nil {
			conn.Close()
			if isTimeout(err) {
				return nil, outbound.Errf(outbound.CodeConnectTimeout, "TLS handshake exceeded connect window for %s", authority)
			}
			return nil, &outbound.HostError{
				Code:    outbound.CodeTLSError,
				Message: "TLS handshake failed",
				Details: err.Error(),
			}
		}
		conn = tlsConn
	}

	resp, err := c.roundTrip(conn, req, u, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return resp, nil
}

// roundTrip writes the request in origin-form and reads the response head.
// The returned response body enforces the between-bytes timeout and hands
// the connection to a detached driver for teardown.
func (c *Client) roundTrip(conn net.Conn, req *Request, u *url.URL, cfg RequestConfig) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	// Origin-form request line: scheme and authority stripped, empty path
	// defaults to "/".
	target := &url.URL{Path: u.Path, RawQuery: u.RawQuery}
	if target.Path == "" {
		target.Path = "/"
	}

	header := req.Header
	if header == nil {
		header = http.Header{}
	}
	hostHeader := header.Get("Host")
	if hostHeader == "" {
		hostHeader = u.Host
	}

	hr := &http.Request{
		Method:        method,
		URL:           target,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
		Host:          hostHeader,
	}

	if err := conn.SetDeadline(time.Now().Add(cfg.FirstByteTimeout)); err != nil {
		return nil, outbound.Errf(outbound.CodeProtocolError, "arming first-byte deadline: %v", err)
	}

	bw := bufio.NewWriter(conn)
	err := hr.Write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), hr)
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	// Body reads arm their own deadline per chunk.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		resp.Body.Close()
		return nil, outbound.Errf(outbound.CodeProtocolError, "clearing deadline: %v", err)
	}

	done := make(chan struct{})
	c.spawnConnDriver(conn, done)

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body: &timedBody{
			inner:   resp.Body,
			conn:    conn,
			timeout: cfg.BetweenBytesTimeout,
			done:    done,
		},
	}, nil
}

// spawnConnDriver detaches a goroutine that outlives the originating call
// and closes the connection once the body is consumed or abandoned, or the
// client itself shuts down. Late errors are logged, never propagated; the
// response path must not wait on post-response teardown.
func (c *Client) spawnConnDriver(conn net.Conn, done <-chan struct{}) {
	go func() {
		select {
		case <-done:
		case <-c.shutdown:
		}
		if err := conn.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("closing outbound http connection")
		}
	}()
}

// Package outbound holds the shared scaffolding of the outbound-network
// capability layer: the per-instance context object every host call receives,
// the guest-visible error vocabulary, and the backend factory registry.
package outbound

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gatehouse-host/gatehouse/internal/netguard"
	"github.com/gatehouse-host/gatehouse/internal/policy"
)

// DefaultMaxConnections bounds the number of concurrently open backend
// connections per instance when the config does not say otherwise.
const DefaultMaxConnections = 32

// SelfOrigin describes the instance's own externally reachable address,
// used to resolve relative request URIs. Absent (nil) in execution contexts
// without a known self-address.
type SelfOrigin struct {
	Scheme    string
	Authority string
}

// ParseSelfOrigin parses "scheme://authority" into a SelfOrigin.
func ParseSelfOrigin(origin string) (*SelfOrigin, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid self origin %q", origin)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("invalid self origin scheme %q", u.Scheme)
	}
	return &SelfOrigin{Scheme: scheme, Authority: u.Host}, nil
}

// UseTLS reports whether self requests travel over TLS.
func (o *SelfOrigin) UseTLS() bool {
	return o.Scheme == "https"
}

// HostHeader returns the Host header value for rewritten self requests.
func (o *SelfOrigin) HostHeader() string {
	return o.Authority
}

// URL joins the origin with a path-and-query string.
func (o *SelfOrigin) URL(pathAndQuery string) string {
	if !strings.HasPrefix(pathAndQuery, "/") {
		pathAndQuery = "/" + pathAndQuery
	}
	return o.Scheme + "://" + o.Authority + pathAndQuery
}

// TLSConfigs hands out pre-built TLS client configurations keyed by
// destination host. Certificate material provisioning happens elsewhere;
// this is an opaque lookup.
type TLSConfigs struct {
	byHost   map[string]*tls.Config
	fallback *tls.Config
}

// NewTLSConfigs creates a TLSConfigs with per-host overrides (which may
// carry client certificates for mutual TLS) and a fallback used for every
// other host. A nil fallback means an empty default config.
func NewTLSConfigs(byHost map[string]*tls.Config, fallback *tls.Config) TLSConfigs {
	if fallback == nil {
		fallback = &tls.Config{}
	}
	return TLSConfigs{byHost: byHost, fallback: fallback}
}

// ClientConfig returns a clone of the configuration for host, with
// ServerName filled in.
func (c TLSConfigs) ClientConfig(host string) *tls.Config {
	cfg := c.fallback
	if found, ok := c.byHost[strings.ToLower(host)]; ok {
		cfg = found
	}
	clone := cfg.Clone()
	if clone == nil {
		clone = &tls.Config{}
	}
	if clone.ServerName == "" {
		clone.ServerName = host
	}
	return clone
}

// InstanceConfig carries everything an Instance needs at construction.
type InstanceConfig struct {
	AllowedHosts    *policy.AllowedHosts
	BlockedNetworks netguard.BlockedNetworks
	SelfOrigin      *SelfOrigin
	TLS             TLSConfigs
	MaxConnections  int
	Logger          zerolog.Logger
	Tracer          trace.Tracer

	// LookupFunc and DialFunc override name resolution and connection
	// establishment; production leaves them nil.
	Lookup netguard.LookupFunc
	Dial   netguard.DialFunc
}

// Instance is the per-guest-instance context object passed into every host
// call. The policy and blocked-network data it holds are read-only after
// construction; there is no ambient or global state.
type Instance struct {
	id           string
	allowedHosts *policy.AllowedHosts
	networks     netguard.BlockedNetworks
	resolver     *netguard.Resolver
	dialer       *netguard.Dialer
	selfOrigin   *SelfOrigin
	tls          TLSConfigs
	maxConns     int
	logger       zerolog.Logger
	tracer       trace.Tracer

	mu      sync.Mutex
	closers []io.Closer
	closed  bool
}

// NewInstance creates the context object for one guest instance.
func NewInstance(cfg InstanceConfig) (*Instance, error) {
	if cfg.AllowedHosts == nil {
		return nil, fmt.Errorf("instance config: allowed hosts required")
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("gatehouse")
	}

	id := uuid.NewString()
	logger := cfg.Logger.With().Str("instance", id).Logger()
	resolver := netguard.NewResolver(cfg.BlockedNetworks, cfg.Lookup, logger)

	return &Instance{
		id:           id,
		allowedHosts: cfg.AllowedHosts,
		networks:     cfg.BlockedNetworks,
		resolver:     resolver,
		dialer:       netguard.NewDialer(resolver, cfg.Dial, logger),
		selfOrigin:   cfg.SelfOrigin,
		tls:          cfg.TLS,
		maxConns:     cfg.MaxConnections,
		logger:       logger,
		tracer:       cfg.Tracer,
	}, nil
}

// ID returns the instance identifier used in logs.
func (i *Instance) ID() string { return i.id }

// AllowedHosts returns the instance's immutable allow-list.
func (i *Instance) AllowedHosts() *policy.AllowedHosts { return i.allowedHosts }

// BlockedNetworks returns the instance's blocked-network set.
func (i *Instance) BlockedNetworks() netguard.BlockedNetworks { return i.networks }

// Resolver returns the blocked-network filtering resolver.
func (i *Instance) Resolver() *netguard.Resolver { return i.resolver }

// Dialer returns the guarded dialer shared by every backend adapter.
func (i *Instance) Dialer() *netguard.Dialer { return i.dialer }

// SelfOrigin returns the instance's own origin, or nil when unknown.
func (i *Instance) SelfOrigin() *SelfOrigin { return i.selfOrigin }

// TLSConfigs returns the instance's TLS client configuration lookup.
func (i *Instance) TLSConfigs() TLSConfigs { return i.tls }

// MaxConnections returns the per-instance connection table capacity.
func (i *Instance) MaxConnections() int { return i.maxConns }

// Logger returns the instance-scoped logger.
func (i *Instance) Logger() zerolog.Logger { return i.logger }

// Tracer returns the tracer used for outbound call spans.
func (i *Instance) Tracer() trace.Tracer { return i.tracer }

// Authorize checks an absolute destination against the allow-list and maps
// policy errors to guest-visible codes.
func (i *Instance) Authorize(address, defaultScheme string) error {
	err := i.allowedHosts.Authorize(address, defaultScheme)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, policy.ErrInvalidAddress):
		return &HostError{Code: CodeInvalidAddress, Message: "invalid address", Details: err.Error()}
	default:
		return &HostError{Code: CodeDenied, Message: "destination not permitted", Details: err.Error()}
	}
}

// AddCloser registers a resource to release at instance teardown.
func (i *Instance) AddCloser(c io.Closer) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closers = append(i.closers, c)
}

// Close tears the instance down, releasing every registered backend.
// Idempotent.
func (i *Instance) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	closers := i.closers
	i.closers = nil
	i.mu.Unlock()

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing backends: %v", errs)
	}
	return nil
}

package netguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/rs/zerolog"
)

// ErrProhibited indicates every resolved address for a destination was
// removed by the blocked-network set. It is distinct from a DNS failure so
// operators can tell a rebinding attempt from a flaky resolver, and it
// deliberately does not name the blocked addresses.
var ErrProhibited = errors.New("destination address prohibited")

// LookupFunc resolves a hostname to candidate addresses.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// Resolver resolves hostnames and filters the results through a
// BlockedNetworks set before anything connects to them.
type Resolver struct {
	networks BlockedNetworks
	lookup   LookupFunc
	logger   zerolog.Logger
}

// NewResolver creates a Resolver. lookup may be nil, in which case the
// system resolver is used.
func NewResolver(networks BlockedNetworks, lookup LookupFunc, logger zerolog.Logger) *Resolver {
	if lookup == nil {
		lookup = func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		}
	}
	return &Resolver{networks: networks, lookup: lookup, logger: logger}
}

// Resolve returns the permitted addresses for host. IP literals are filtered
// exactly like resolved names. When filtering removes every candidate the
// error is ErrProhibited; resolution failures pass through unchanged.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	var candidates []netip.Addr
	if addr, err := netip.ParseAddr(host); err == nil {
		candidates = []netip.Addr{addr}
	} else {
		resolved, err := r.lookup(ctx, host)
		if err != nil {
			return nil, err
		}
		candidates = resolved
	}

	kept, removed := r.networks.RemoveBlocked(candidates)
	if len(kept) == 0 {
		if len(removed) > 0 {
			r.logger.Error().
				Str("host", host).
				Int("blocked", len(removed)).
				Msg("all destination addresses prohibited by runtime config")
			return nil, fmt.Errorf("%w: %s", ErrProhibited, host)
		}
		return nil, &net.DNSError{Err: "no addresses found", Name: host, IsNotFound: true}
	}
	return kept, nil
}

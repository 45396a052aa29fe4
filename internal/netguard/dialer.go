package netguard

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/rs/zerolog"
)

// DialFunc opens a single connection to a resolved address.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Dialer establishes outbound connections only to addresses that survive the
// blocked-network filter. It is the single dial path shared by every backend
// adapter so DNS-rebinding protection applies uniformly across protocols.
type Dialer struct {
	resolver *Resolver
	dial     DialFunc
	logger   zerolog.Logger
}

// NewDialer creates a Dialer. dial may be nil, in which case a plain
// net.Dialer is used; the caller bounds connect time through ctx.
func NewDialer(resolver *Resolver, dial DialFunc, logger zerolog.Logger) *Dialer {
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	return &Dialer{resolver: resolver, dial: dial, logger: logger}
}

// DialContext resolves the host in address, filters the candidates, and
// attempts a connection to each permitted address in order, returning the
// first that succeeds.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, portText, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("invalid dial address %q: %w", address, err)
	}
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid dial port %q: %w", portText, err)
	}

	addrs, err := d.resolver.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, addr := range addrs {
		target := netip.AddrPortFrom(addr, uint16(port)).String()
		conn, err := d.dial(ctx, network, target)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		d.logger.Debug().Str("address", target).Err(err).Msg("dial attempt failed")

		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// Package netguard prevents outbound connections from reaching prohibited
// network ranges. It operates on resolved addresses, never on hostnames, so
// that an allow-listed hostname cannot be rebound to internal infrastructure
// through DNS.
package netguard

import (
	"net/netip"
)

// BlockedNetworks is an immutable set of prohibited network prefixes with
// explicit override exceptions. Safe for concurrent use.
type BlockedNetworks struct {
	blocked []netip.Prefix
	allowed []netip.Prefix
}

// New builds a BlockedNetworks from prohibited prefixes and override
// exceptions. An address matching an override is permitted even when it also
// matches a blocked prefix.
func New(blocked, allowed []netip.Prefix) BlockedNetworks {
	return BlockedNetworks{
		blocked: append([]netip.Prefix(nil), blocked...),
		allowed: append([]netip.Prefix(nil), allowed...),
	}
}

// DefaultPrefixes returns the ranges the runtime refuses to connect to
// unless explicitly overridden: unspecified, loopback, private, link-local
// (including the cloud metadata service), carrier-grade NAT, unique-local,
// multicast, and broadcast.
func DefaultPrefixes() []netip.Prefix {
	prefixes := []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"224.0.0.0/4",
		"255.255.255.255/32",
		"::/128",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
		"ff00::/8",
	}
	parsed := make([]netip.Prefix, len(prefixes))
	for i, p := range prefixes {
		parsed[i] = netip.MustParsePrefix(p)
	}
	return parsed
}

// Default returns the blocked-network set built from DefaultPrefixes with
// no overrides.
func Default() BlockedNetworks {
	return New(DefaultPrefixes(), nil)
}

// IsBlocked reports whether addr falls in a blocked prefix and is not
// covered by an override exception.
func (b BlockedNetworks) IsBlocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range b.allowed {
		if p.Contains(addr) {
			return false
		}
	}
	for _, p := range b.blocked {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RemoveBlocked partitions candidates into addresses the runtime may connect
// to and addresses it must not. The partition is stable: kept and removed
// together contain exactly the candidates, in their original order.
func (b BlockedNetworks) RemoveBlocked(candidates []netip.Addr) (kept, removed []netip.Addr) {
	for _, addr := range candidates {
		if b.IsBlocked(addr) {
			removed = append(removed, addr)
		} else {
			kept = append(kept, addr)
		}
	}
	return kept, removed
}

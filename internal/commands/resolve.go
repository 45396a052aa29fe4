package commands

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// Resolve resolves a host name and shows which addresses the blocked-network
// set keeps and which it removes, mirroring what the guarded dialer would do.
func (c *Controller) Resolve(ctx context.Context, host string) error {
	if host == "" {
		return fmt.Errorf("usage: gatehouse resolve <host>")
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	networks, err := cfg.Networks()
	if err != nil {
		return err
	}

	addrs, err := c.lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}

	kept, removed := networks.RemoveBlocked(addrs)
	fmt.Fprintf(c.out(), "%s resolves to %d address(es)\n", host, len(addrs))
	for _, addr := range kept {
		fmt.Fprintf(c.out(), "  dialable: %s\n", addr)
	}
	for _, addr := range removed {
		fmt.Fprintf(c.out(), "  blocked:  %s\n", addr)
	}
	if len(kept) == 0 {
		fmt.Fprintf(c.out(), "every address is blocked; connections to %s would be prohibited\n", host)
	}
	return nil
}

func (c *Controller) lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}
	if c.Lookup != nil {
		return c.Lookup(ctx, host)
	}
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

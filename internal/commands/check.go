package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gatehouse-host/gatehouse/internal/outbound"
)

// Check evaluates a destination address against the configured allow-list
// and prints the verdict a guest request would receive.
func (c *Controller) Check(ctx context.Context, address string) error {
	if address == "" {
		return fmt.Errorf("usage: gatehouse check <address>")
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	inst, err := cfg.BuildInstance(log.Logger)
	if err != nil {
		return err
	}
	defer inst.Close()

	err = inst.Authorize(address, "https")
	switch {
	case err == nil:
		fmt.Fprintf(c.out(), "allowed: %s\n", address)
	default:
		var hostErr *outbound.HostError
		if !errors.As(err, &hostErr) {
			return err
		}
		fmt.Fprintf(c.out(), "%s: %s\n", verdict(hostErr.Code), address)
		if hostErr.Details != "" {
			fmt.Fprintf(c.out(), "  %s\n", hostErr.Details)
		}
	}
	return nil
}

func verdict(code string) string {
	switch code {
	case outbound.CodeDenied:
		return "denied"
	case outbound.CodeInvalidAddress:
		return "invalid"
	default:
		return code
	}
}

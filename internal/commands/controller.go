// Package commands contains the CLI commands for the application
package commands

import (
	"io"
	"os"

	"github.com/gatehouse-host/gatehouse/internal/config"
	"github.com/gatehouse-host/gatehouse/internal/netguard"
)

type Flags struct {
	Config   string
	LogLevel string
}

type Controller struct {
	Flags *Flags

	// Out receives command output; nil means stdout.
	Out io.Writer

	// Lookup overrides name resolution for tests; nil means the system
	// resolver.
	Lookup netguard.LookupFunc
}

func (c *Controller) out() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stdout
}

func (c *Controller) loadConfig() (*config.Config, error) {
	if c.Flags != nil && c.Flags.Config != "" {
		return config.LoadConfigFromPath(c.Flags.Config)
	}
	cfg, _, err := config.LoadConfig()
	return cfg, err
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/gatehouse-host/gatehouse/internal/commands"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	ctrl := &commands.Controller{
		Flags: &commands.Flags{},
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:    "gatehouse",
		Usage:   "Outbound-network capability layer for sandboxed guests: allow-list checks, SSRF-safe dialing, and connection diagnostics.",
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error, fatal, panic)",
				Sources: cli.EnvVars("LOG_LEVEL"),
				Value:   "panic",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to gatehouse.json (default: search parent directories)",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("failed to parse log level: %w", err)
			}

			log.Logger = log.Level(level)
			ctrl.Flags.LogLevel = c.String("log-level")
			ctrl.Flags.Config = c.String("config")

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Evaluate a destination address against the configured allow-list",
				ArgsUsage: "<address>",
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Check(ctx, c.Args().First())
				},
			},
			{
				Name:      "resolve",
				Usage:     "Resolve a host and show which addresses the blocked-network set keeps",
				ArgsUsage: "<host>",
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Resolve(ctx, c.Args().First())
				},
			},
		},
	}

	ctx := context.Background()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("failed to run gatehouse")
	}
}

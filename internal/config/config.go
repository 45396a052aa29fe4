// Package config loads the gatehouse.json runtime configuration. A config
// that fails to parse or validate is the one fatal error class: it stops
// instance construction instead of surfacing to guests at call time.
package config

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatehouse-host/gatehouse/internal/httpout"
	"github.com/gatehouse-host/gatehouse/internal/netguard"
	"github.com/gatehouse-host/gatehouse/internal/outbound"
	"github.com/gatehouse-host/gatehouse/internal/policy"
)

// Config represents the gatehouse.json configuration file
type Config struct {
	AllowedOutboundHosts []string       `json:"allowed_outbound_hosts"`
	BlockedNetworks      NetworksConfig `json:"blocked_networks"`
	SelfOrigin           string         `json:"self_origin"`
	MaxConnections       int            `json:"max_connections"`
	HTTP                 HTTPConfig     `json:"http"`
}

// NetworksConfig shapes the blocked-network set: extra blocked prefixes,
// exception prefixes carved out of blocked ranges, and a switch to drop the
// built-in private/loopback/link-local defaults.
type NetworksConfig struct {
	Block           []string `json:"block"`
	Allow           []string `json:"allow"`
	DisableDefaults bool     `json:"disable_defaults"`
}

// HTTPConfig contains outbound HTTP timeout configuration
type HTTPConfig struct {
	ConnectTimeout      string `json:"connect_timeout"`
	FirstByteTimeout    string `json:"first_byte_timeout"`
	BetweenBytesTimeout string `json:"between_bytes_timeout"`
}

// LoadConfig loads the gatehouse.json configuration from the current
// directory or a parent directory
func LoadConfig() (*Config, string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return loadConfigFromDir(dir)
}

// LoadConfigFromPath loads the gatehouse.json configuration from a specific path
func LoadConfigFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.MaxConnections == 0 {
		config.MaxConnections = outbound.DefaultMaxConnections
	}

	return &config, nil
}

// loadConfigFromDir searches for gatehouse.json in the given directory and its parents
func loadConfigFromDir(startDir string) (*Config, string, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, "gatehouse.json")
		if _, err := os.Stat(configPath); err == nil {
			config, err := LoadConfigFromPath(configPath)
			if err != nil {
				return nil, "", err
			}
			return config, dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}

	return nil, "", fmt.Errorf("no gatehouse.json found in %s or any parent directory", startDir)
}

// Networks builds the blocked-network set from the config.
func (c *Config) Networks() (netguard.BlockedNetworks, error) {
	blocked := netguard.DefaultPrefixes()
	if c.BlockedNetworks.DisableDefaults {
		blocked = nil
	}
	for _, text := range c.BlockedNetworks.Block {
		prefix, err := netip.ParsePrefix(text)
		if err != nil {
			return netguard.BlockedNetworks{}, fmt.Errorf("invalid blocked network %q: %w", text, err)
		}
		blocked = append(blocked, prefix)
	}
	var allowed []netip.Prefix
	for _, text := range c.BlockedNetworks.Allow {
		prefix, err := netip.ParsePrefix(text)
		if err != nil {
			return netguard.BlockedNetworks{}, fmt.Errorf("invalid allowed network %q: %w", text, err)
		}
		allowed = append(allowed, prefix)
	}
	return netguard.New(blocked, allowed), nil
}

// RequestConfig builds the outbound HTTP timeout configuration, falling back
// to the dispatch defaults for unset fields.
func (c *Config) RequestConfig() (httpout.RequestConfig, error) {
	out := httpout.RequestConfig{}
	var err error
	if out.ConnectTimeout, err = parseTimeout(c.HTTP.ConnectTimeout); err != nil {
		return out, fmt.Errorf("invalid connect_timeout: %w", err)
	}
	if out.FirstByteTimeout, err = parseTimeout(c.HTTP.FirstByteTimeout); err != nil {
		return out, fmt.Errorf("invalid first_byte_timeout: %w", err)
	}
	if out.BetweenBytesTimeout, err = parseTimeout(c.HTTP.BetweenBytesTimeout); err != nil {
		return out, fmt.Errorf("invalid between_bytes_timeout: %w", err)
	}
	return out, nil
}

func parseTimeout(text string) (time.Duration, error) {
	if text == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", text)
	}
	return d, nil
}

// BuildInstance assembles the per-guest-instance context object from the
// config. Every validation failure stops construction here.
func (c *Config) BuildInstance(logger zerolog.Logger) (*outbound.Instance, error) {
	allowed, err := policy.ParseAllowedHosts(c.AllowedOutboundHosts)
	if err != nil {
		return nil, fmt.Errorf("invalid allowed_outbound_hosts: %w", err)
	}

	networks, err := c.Networks()
	if err != nil {
		return nil, err
	}

	var selfOrigin *outbound.SelfOrigin
	if c.SelfOrigin != "" {
		selfOrigin, err = outbound.ParseSelfOrigin(c.SelfOrigin)
		if err != nil {
			return nil, fmt.Errorf("invalid self_origin: %w", err)
		}
	}

	return outbound.NewInstance(outbound.InstanceConfig{
		AllowedHosts:    allowed,
		BlockedNetworks: networks,
		SelfOrigin:      selfOrigin,
		MaxConnections:  c.MaxConnections,
		Logger:          logger,
	})
}

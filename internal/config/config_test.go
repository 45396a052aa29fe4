package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "gatehouse.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFromPath(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, got *Config)
	}{
		{
			name: "full config",
			content: `{
				"allowed_outbound_hosts": ["https://api.example.com", "redis://cache.internal"],
				"blocked_networks": {"block": ["198.51.100.0/24"], "allow": ["10.1.2.0/24"]},
				"self_origin": "https://app.internal",
				"max_connections": 8,
				"http": {"connect_timeout": "10s"}
			}`,
			check: func(t *testing.T, got *Config) {
				assert.Len(t, got.AllowedOutboundHosts, 2)
				assert.Equal(t, []string{"198.51.100.0/24"}, got.BlockedNetworks.Block)
				assert.Equal(t, "https://app.internal", got.SelfOrigin)
				assert.Equal(t, 8, got.MaxConnections)
				assert.Equal(t, "10s", got.HTTP.ConnectTimeout)
			},
		},
		{
			name:    "empty config gets defaults",
			content: `{}`,
			check: func(t *testing.T, got *Config) {
				assert.Empty(t, got.AllowedOutboundHosts)
				assert.Equal(t, 32, got.MaxConnections)
				assert.False(t, got.BlockedNetworks.DisableDefaults)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)

			got, err := LoadConfigFromPath(path)
			require.NoError(t, err)
			require.NotNil(t, got)
			tt.check(t, got)
		})
	}
}

func TestLoadConfigFromPath_Errors(t *testing.T) {
	tests := []struct {
		name        string
		setupFunc   func(string) string
		errContains string
	}{
		{
			name: "file not found",
			setupFunc: func(tmpDir string) string {
				return filepath.Join(tmpDir, "nonexistent.json")
			},
			errContains: "failed to read config file",
		},
		{
			name: "invalid json",
			setupFunc: func(tmpDir string) string {
				return writeConfig(t, tmpDir, "invalid json")
			},
			errContains: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := tt.setupFunc(tmpDir)

			_, err := LoadConfigFromPath(configPath)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("config in current dir", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeConfig(t, tmpDir, `{"max_connections": 4}`)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		require.NoError(t, os.Chdir(tmpDir))

		got, projectRoot, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 4, got.MaxConnections)
		// Use filepath.EvalSymlinks to resolve any symlinks for comparison
		expectedRoot, _ := filepath.EvalSymlinks(tmpDir)
		actualRoot, _ := filepath.EvalSymlinks(projectRoot)
		assert.Equal(t, expectedRoot, actualRoot)
	})

	t.Run("config in parent dir", func(t *testing.T) {
		tmpDir := t.TempDir()
		subDir := filepath.Join(tmpDir, "subdir")
		require.NoError(t, os.MkdirAll(subDir, 0755))
		writeConfig(t, tmpDir, `{"max_connections": 4}`)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		require.NoError(t, os.Chdir(subDir))

		got, projectRoot, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 4, got.MaxConnections)
		expectedRoot, _ := filepath.EvalSymlinks(tmpDir)
		actualRoot, _ := filepath.EvalSymlinks(projectRoot)
		assert.Equal(t, expectedRoot, actualRoot)
	})

	t.Run("no config found", func(t *testing.T) {
		tmpDir := t.TempDir()

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		require.NoError(t, os.Chdir(tmpDir))

		_, _, err := LoadConfig()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no gatehouse.json found")
	})
}

func TestNetworks(t *testing.T) {
	t.Run("defaults plus extras", func(t *testing.T) {
		cfg := &Config{BlockedNetworks: NetworksConfig{
			Block: []string{"198.51.100.0/24"},
			Allow: []string{"10.1.2.0/24"},
		}}
		networks, err := cfg.Networks()
		require.NoError(t, err)

		assert.True(t, networks.IsBlocked(netip.MustParseAddr("127.0.0.1")))
		assert.True(t, networks.IsBlocked(netip.MustParseAddr("198.51.100.7")))
		assert.False(t, networks.IsBlocked(netip.MustParseAddr("10.1.2.3")), "allow carves out of blocked ranges")
		assert.True(t, networks.IsBlocked(netip.MustParseAddr("10.9.9.9")))
	})

	t.Run("defaults disabled", func(t *testing.T) {
		cfg := &Config{BlockedNetworks: NetworksConfig{DisableDefaults: true}}
		networks, err := cfg.Networks()
		require.NoError(t, err)
		assert.False(t, networks.IsBlocked(netip.MustParseAddr("127.0.0.1")))
	})

	t.Run("invalid prefix", func(t *testing.T) {
		cfg := &Config{BlockedNetworks: NetworksConfig{Block: []string{"not-a-prefix"}}}
		_, err := cfg.Networks()
		assert.ErrorContains(t, err, "invalid blocked network")
	})
}

func TestRequestConfig(t *testing.T) {
	cfg := &Config{HTTP: HTTPConfig{
		ConnectTimeout:   "10s",
		FirstByteTimeout: "45s",
	}}
	rc, err := cfg.RequestConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, rc.ConnectTimeout)
	assert.Equal(t, 45*time.Second, rc.FirstByteTimeout)
	assert.Zero(t, rc.BetweenBytesTimeout, "unset timeouts fall back at dispatch time")

	cfg.HTTP.ConnectTimeout = "soon"
	_, err = cfg.RequestConfig()
	assert.ErrorContains(t, err, "invalid connect_timeout")

	cfg.HTTP.ConnectTimeout = "-1s"
	_, err = cfg.RequestConfig()
	assert.ErrorContains(t, err, "invalid connect_timeout")
}

func TestBuildInstance(t *testing.T) {
	cfg := &Config{
		AllowedOutboundHosts: []string{"https://api.example.com"},
		SelfOrigin:           "https://app.internal",
		MaxConnections:       4,
	}
	inst, err := cfg.BuildInstance(zerolog.Nop())
	require.NoError(t, err)
	defer inst.Close()

	assert.NoError(t, inst.Authorize("https://api.example.com/path", "https"))
	assert.Error(t, inst.Authorize("https://other.example.com", "https"))
	assert.Equal(t, 4, inst.MaxConnections())
	require.NotNil(t, inst.SelfOrigin())
	assert.Equal(t, "app.internal", inst.SelfOrigin().HostHeader())
}

func TestBuildInstance_Errors(t *testing.T) {
	_, err := (&Config{AllowedOutboundHosts: []string{"https://bad:port:extra"}}).BuildInstance(zerolog.Nop())
	assert.ErrorContains(t, err, "invalid allowed_outbound_hosts")

	_, err = (&Config{SelfOrigin: "ftp://app.internal"}).BuildInstance(zerolog.Nop())
	assert.ErrorContains(t, err, "invalid self_origin")
}

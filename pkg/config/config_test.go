package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkexplorer/offworker/internal/bytesize"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 8090, cfg.Gateway.Port)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultTileHost, cfg.Origins.TileHost)
	assert.Equal(t, "/index.html", cfg.Origins.AppShell)
	assert.Equal(t, 4*bytesize.MiB, cfg.Caches.MaxEntrySize)
	assert.Equal(t, 15*time.Second, cfg.Replay.Timeout)
	assert.Contains(t, cfg.Replay.Endpoint, "/api/points")
	assert.NotEmpty(t, cfg.Precache.Manifest)
	assert.Equal(t, "/", cfg.Precache.Manifest[0])

	require.NoError(t, Validate(cfg))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "DEBUG"
	cfg.Gateway.Port = 9999
	cfg.Origins.Origin = "https://pkexplorer.example.com"
	cfg.Origins.BackendHosts = []string{"api.pkexplorer.example.com"}
	cfg.Caches.Path = filepath.Join(dir, "cache")
	cfg.Caches.MaxEntrySize = 8 * bytesize.MiB
	cfg.Queue.Path = filepath.Join(dir, "queue")
	cfg.Replay.Endpoint = "https://pkexplorer.example.com/api/points"
	cfg.Replay.Timeout = 45 * time.Second

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", loaded.Logging.Level)
	assert.Equal(t, 9999, loaded.Gateway.Port)
	assert.Equal(t, "https://pkexplorer.example.com", loaded.Origins.Origin)
	assert.Equal(t, []string{"api.pkexplorer.example.com"}, loaded.Origins.BackendHosts)
	assert.Equal(t, 8*bytesize.MiB, loaded.Caches.MaxEntrySize)
	assert.Equal(t, 45*time.Second, loaded.Replay.Timeout)
}

func TestLoadHumanReadableValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
origins:
  origin: https://pkexplorer.example.com
caches:
  path: ` + filepath.Join(dir, "cache") + `
  max_entry_size: 512Ki
queue:
  path: ` + filepath.Join(dir, "queue") + `
replay:
  timeout: 90s
gateway:
  request_timeout: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 512*bytesize.KiB, cfg.Caches.MaxEntrySize)
	assert.Equal(t, 90*time.Second, cfg.Replay.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Gateway.RequestTimeout)
}

func TestLoadAppliesDefaultsForMissingSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
caches:
  in_memory: true
queue:
  in_memory: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, 8090, cfg.Gateway.Port)
	assert.Equal(t, DefaultTileHost, cfg.Origins.TileHost)
	assert.True(t, cfg.Caches.InMemory)
	assert.True(t, cfg.Queue.InMemory)
}

func TestEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
logging:
  level: INFO
caches:
  in_memory: true
queue:
  in_memory: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("OFFWORKER_LOGGING_LEVEL", "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "VERBOSE" },
			wantErr: "logging.level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "gateway port out of range",
			mutate:  func(c *Config) { c.Gateway.Port = 70000 },
			wantErr: "gateway.port",
		},
		{
			name:    "tile host is a URL",
			mutate:  func(c *Config) { c.Origins.TileHost = "https://tile.example.com" },
			wantErr: "tile_host",
		},
		{
			name:    "backend host is a URL",
			mutate:  func(c *Config) { c.Origins.BackendHosts = []string{"https://api.example.com"} },
			wantErr: "backend_hosts",
		},
		{
			name:    "relative app shell",
			mutate:  func(c *Config) { c.Origins.AppShell = "index.html" },
			wantErr: "app_shell",
		},
		{
			name: "missing cache path",
			mutate: func(c *Config) {
				c.Caches.Path = ""
				c.Caches.InMemory = false
			},
			wantErr: "caches.path",
		},
		{
			name:    "replay endpoint without scheme",
			mutate:  func(c *Config) { c.Replay.Endpoint = "localhost/api/points" },
			wantErr: "replay.endpoint",
		},
		{
			name:    "sample rate out of range",
			mutate:  func(c *Config) { c.Telemetry.SampleRate = 2.0 },
			wantErr: "sample_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateNormalizesLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "debug"

	require.NoError(t, Validate(cfg))
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestMustLoadMissingExplicitFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offworker init")
}

func TestResolvedManifest(t *testing.T) {
	pc := PrecacheConfig{Manifest: []string{
		"/",
		"/index.html",
		"https://unpkg.com/leaflet@1.9.4/dist/leaflet.js",
	}}

	resolved := pc.ResolvedManifest("https://pkexplorer.example.com")

	assert.Equal(t, []string{
		"https://pkexplorer.example.com/",
		"https://pkexplorer.example.com/index.html",
		"https://unpkg.com/leaflet@1.9.4/dist/leaflet.js",
	}, resolved)
}

func TestAppShellURL(t *testing.T) {
	origins := OriginsConfig{
		Origin:   "https://pkexplorer.example.com/",
		AppShell: "/index.html",
	}

	assert.Equal(t, "https://pkexplorer.example.com/index.html", origins.AppShellURL())
}

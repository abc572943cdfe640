package config

import (
	"time"

	"github.com/pkexplorer/offworker/internal/bytesize"
	"github.com/pkexplorer/offworker/pkg/gateway"
)

// Default configuration values.
const (
	// DefaultLogLevel is the default minimum log level
	DefaultLogLevel = "INFO"

	// DefaultLogFormat is the default log output format
	DefaultLogFormat = "text"

	// DefaultLogOutput is the default log destination
	DefaultLogOutput = "stdout"

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMetricsPort is the default Prometheus metrics port
	DefaultMetricsPort = 9090

	// DefaultTelemetryEndpoint is the default OTLP collector endpoint
	DefaultTelemetryEndpoint = "localhost:4317"

	// DefaultProfilingEndpoint is the default Pyroscope server endpoint
	DefaultProfilingEndpoint = "http://localhost:4040"

	// DefaultOrigin is the default application origin
	DefaultOrigin = "http://localhost:3000"

	// DefaultTileHost is the default map tile server host
	DefaultTileHost = "tile.openstreetmap.org"

	// DefaultAppShell is the default application shell path
	DefaultAppShell = "/index.html"

	// DefaultReplayTimeout bounds a single replay POST
	DefaultReplayTimeout = 15 * time.Second

	// DefaultMaxEntrySize is the default per-entry cache size ceiling
	DefaultMaxEntrySize = 4 * bytesize.MiB
)

// DefaultManifest lists the assets precached into the static namespace
// when no manifest is configured. Relative paths resolve against the
// configured origin.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/manifest.webmanifest",
	"https://fonts.googleapis.com/css2?family=Inter:wght@400;500;600;700&display=swap",
	"https://unpkg.com/leaflet@1.9.4/dist/leaflet.css",
	"https://unpkg.com/leaflet@1.9.4/dist/leaflet.js",
	"https://unpkg.com/browser-image-compression@2.0.2/dist/browser-image-compression.js",
	"https://unpkg.com/qrcode@1.5.3/build/qrcode.js",
}

// ApplyDefaults fills in default values for any missing configuration.
// This ensures the config is always in a valid state even if the
// config file omits sections.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyGatewayDefaults(cfg)
	applyOriginsDefaults(&cfg.Origins)
	applyCachesDefaults(&cfg.Caches)
	applyReplayDefaults(cfg)
	applyPrecacheDefaults(&cfg.Precache)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyLoggingDefaults(c *LoggingConfig) {
	if c.Level == "" {
		c.Level = DefaultLogLevel
	}
	if c.Format == "" {
		c.Format = DefaultLogFormat
	}
	if c.Output == "" {
		c.Output = DefaultLogOutput
	}
}

func applyTelemetryDefaults(c *TelemetryConfig) {
	if c.Endpoint == "" {
		c.Endpoint = DefaultTelemetryEndpoint
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.Profiling.Endpoint == "" {
		c.Profiling.Endpoint = DefaultProfilingEndpoint
	}
}

func applyMetricsDefaults(c *MetricsConfig) {
	if c.Port == 0 {
		c.Port = DefaultMetricsPort
	}
}

func applyGatewayDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8090
	}
	if cfg.Gateway.ReadTimeout == 0 {
		cfg.Gateway.ReadTimeout = 10 * time.Second
	}
	if cfg.Gateway.WriteTimeout == 0 {
		cfg.Gateway.WriteTimeout = 30 * time.Second
	}
	if cfg.Gateway.IdleTimeout == 0 {
		cfg.Gateway.IdleTimeout = 60 * time.Second
	}
	if cfg.Gateway.RequestTimeout == 0 {
		cfg.Gateway.RequestTimeout = 30 * time.Second
	}
	// The gateway resolves origin-form paths against the app origin.
	if cfg.Gateway.Origin == "" {
		cfg.Gateway.Origin = cfg.Origins.Origin
		if cfg.Gateway.Origin == "" {
			cfg.Gateway.Origin = DefaultOrigin
		}
	}
}

func applyOriginsDefaults(c *OriginsConfig) {
	if c.Origin == "" {
		c.Origin = DefaultOrigin
	}
	if c.TileHost == "" {
		c.TileHost = DefaultTileHost
	}
	if c.AppShell == "" {
		c.AppShell = DefaultAppShell
	}
}

func applyCachesDefaults(c *CachesConfig) {
	if c.MaxEntrySize == 0 {
		c.MaxEntrySize = DefaultMaxEntrySize
	}
}

func applyReplayDefaults(cfg *Config) {
	if cfg.Replay.Endpoint == "" {
		origin := cfg.Origins.Origin
		if origin == "" {
			origin = DefaultOrigin
		}
		cfg.Replay.Endpoint = resolveAsset(origin, "/api/points")
	}
	if cfg.Replay.Timeout == 0 {
		cfg.Replay.Timeout = DefaultReplayTimeout
	}
}

func applyPrecacheDefaults(c *PrecacheConfig) {
	if len(c.Manifest) == 0 {
		c.Manifest = append([]string(nil), DefaultManifest...)
	}
}

// GetDefaultConfig returns a complete configuration with all default values.
// Used by the init command to generate a starter config file.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Output: DefaultLogOutput,
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Endpoint:   DefaultTelemetryEndpoint,
			Insecure:   true,
			SampleRate: 1.0,
			Profiling: ProfilingConfig{
				Enabled:  false,
				Endpoint: DefaultProfilingEndpoint,
			},
		},
		ShutdownTimeout: DefaultShutdownTimeout,
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    DefaultMetricsPort,
		},
		Gateway: gateway.Config{
			Port: 8090,
		},
		Origins: OriginsConfig{
			Origin:       DefaultOrigin,
			TileHost:     DefaultTileHost,
			BackendHosts: []string{"localhost:3000"},
			AppShell:     DefaultAppShell,
		},
		Caches: CachesConfig{
			Path:         "/var/lib/offworker/cache",
			MaxEntrySize: DefaultMaxEntrySize,
		},
		Queue: QueueConfig{
			Path: "/var/lib/offworker/queue",
		},
		Replay: ReplayConfig{
			Timeout: DefaultReplayTimeout,
		},
		Precache: PrecacheConfig{
			Manifest: append([]string(nil), DefaultManifest...),
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

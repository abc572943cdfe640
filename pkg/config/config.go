package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pkexplorer/offworker/internal/bytesize"
	"github.com/pkexplorer/offworker/pkg/gateway"
)

// Config represents the offworker configuration.
//
// This structure captures the static configuration of the offline
// worker daemon:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Gateway HTTP server settings
//   - Origins (which hosts get which strategy)
//   - Cache and queue storage locations
//   - Replay endpoint
//   - Precache manifest
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (OFFWORKER_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Gateway contains the gateway HTTP server configuration
	Gateway gateway.Config `mapstructure:"gateway" yaml:"gateway"`

	// Origins classifies hosts into fetch strategies
	Origins OriginsConfig `mapstructure:"origins" yaml:"origins"`

	// Caches configures the durable cache namespaces
	Caches CachesConfig `mapstructure:"caches" yaml:"caches"`

	// Queue configures the durable write queue
	Queue QueueConfig `mapstructure:"queue" yaml:"queue"`

	// Replay configures the write replay engine
	Replay ReplayConfig `mapstructure:"replay" yaml:"replay"`

	// Precache lists the assets installed into the static namespace
	Precache PrecacheConfig `mapstructure:"precache" yaml:"precache"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" yaml:"port"`
}

// OriginsConfig classifies hosts into fetch strategies.
type OriginsConfig struct {
	// Origin is the application's own origin; origin-form request
	// paths resolve against it, and relative precache assets do too.
	// Example: https://pkexplorer.example.com
	Origin string `mapstructure:"origin" yaml:"origin"`

	// TileHost is the map tile server host (cache-first strategy).
	TileHost string `mapstructure:"tile_host" yaml:"tile_host"`

	// BackendHosts are data backend hosts (network-only strategy).
	BackendHosts []string `mapstructure:"backend_hosts" yaml:"backend_hosts"`

	// AppShell is the path of the application shell document served to
	// offline navigations.
	// Default: /index.html
	AppShell string `mapstructure:"app_shell" yaml:"app_shell"`
}

// AppShellURL returns the absolute URL of the app shell document.
func (c *OriginsConfig) AppShellURL() string {
	return resolveAsset(c.Origin, c.AppShell)
}

// CachesConfig configures the durable cache namespaces.
type CachesConfig struct {
	// Path is the directory for the cache database.
	// Example: /var/lib/offworker/cache
	Path string `mapstructure:"path" yaml:"path"`

	// MaxEntrySize is the per-entry size ceiling.
	// Supports human-readable formats: "4Mi", "512Ki", "1MB"
	// Default: 4Mi
	MaxEntrySize bytesize.ByteSize `mapstructure:"max_entry_size" yaml:"max_entry_size,omitempty"`

	// InMemory keeps caches in process memory (ephemeral runs, tests).
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`
}

// QueueConfig configures the durable write queue.
type QueueConfig struct {
	// Path is the directory for the queue database.
	// Example: /var/lib/offworker/queue
	Path string `mapstructure:"path" yaml:"path"`

	// InMemory keeps the queue in process memory. Queued writes are
	// lost on restart; only for ephemeral runs and tests.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`
}

// ReplayConfig configures the write replay engine.
type ReplayConfig struct {
	// Endpoint is the absolute URL pending writes are POSTed to.
	// Default: <origin>/api/points
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Timeout bounds a single replay POST.
	// Default: 15s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// PrecacheConfig lists the assets installed into the static namespace.
type PrecacheConfig struct {
	// Manifest holds asset URLs. Relative paths resolve against
	// Origins.Origin. The app shell document should be first.
	Manifest []string `mapstructure:"manifest" yaml:"manifest"`
}

// ResolvedManifest returns the manifest with relative paths resolved
// against the given origin.
func (c *PrecacheConfig) ResolvedManifest(origin string) []string {
	resolved := make([]string, len(c.Manifest))
	for i, asset := range c.Manifest {
		resolved[i] = resolveAsset(origin, asset)
	}
	return resolved
}

func resolveAsset(origin, asset string) string {
	if strings.HasPrefix(asset, "http://") || strings.HasPrefix(asset, "https://") {
		return asset
	}
	return strings.TrimSuffix(origin, "/") + "/" + strings.TrimPrefix(asset, "/")
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (OFFWORKER_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly
// instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  offworker init\n\n"+
				"Or specify a custom config file:\n"+
				"  offworker <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  offworker init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use OFFWORKER_ prefix and underscores
	// Example: OFFWORKER_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("OFFWORKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/offworker/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "4Mi", "512Ki", "1MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to
// current directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "offworker")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "offworker")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}

package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{
	"DEBUG": true,
	"INFO":  true,
	"WARN":  true,
	"ERROR": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Validate checks the configuration for invalid or inconsistent values.
// It is called after defaults are applied, so every field is expected
// to be populated.
func Validate(cfg *Config) error {
	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}
	if err := validatePort("metrics.port", cfg.Metrics.Port); err != nil {
		return err
	}
	if err := validatePort("gateway.port", cfg.Gateway.Port); err != nil {
		return err
	}
	if err := validateOrigins(&cfg.Origins); err != nil {
		return err
	}
	if err := validateStorage(cfg); err != nil {
		return err
	}
	if err := validateAbsoluteURL("replay.endpoint", cfg.Replay.Endpoint); err != nil {
		return err
	}
	if cfg.Replay.Timeout <= 0 {
		return fmt.Errorf("replay.timeout must be positive, got %s", cfg.Replay.Timeout)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", cfg.ShutdownTimeout)
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0.0 and 1.0, got %g", cfg.Telemetry.SampleRate)
	}
	return nil
}

func validateLogging(c *LoggingConfig) error {
	level := strings.ToUpper(c.Level)
	if !validLogLevels[level] {
		return fmt.Errorf("logging.level must be one of DEBUG, INFO, WARN, ERROR, got %q", c.Level)
	}
	c.Level = level

	if !validLogFormats[c.Format] {
		return fmt.Errorf("logging.format must be one of text, json, got %q", c.Format)
	}
	return nil
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", field, port)
	}
	return nil
}

func validateOrigins(c *OriginsConfig) error {
	if err := validateAbsoluteURL("origins.origin", c.Origin); err != nil {
		return err
	}
	if c.TileHost == "" {
		return fmt.Errorf("origins.tile_host must not be empty")
	}
	if strings.Contains(c.TileHost, "://") {
		return fmt.Errorf("origins.tile_host must be a host, not a URL, got %q", c.TileHost)
	}
	for _, host := range c.BackendHosts {
		if host == "" {
			return fmt.Errorf("origins.backend_hosts must not contain empty entries")
		}
		if strings.Contains(host, "://") {
			return fmt.Errorf("origins.backend_hosts entries must be hosts, not URLs, got %q", host)
		}
	}
	if !strings.HasPrefix(c.AppShell, "/") {
		return fmt.Errorf("origins.app_shell must be an absolute path, got %q", c.AppShell)
	}
	return nil
}

func validateStorage(cfg *Config) error {
	if !cfg.Caches.InMemory && cfg.Caches.Path == "" {
		return fmt.Errorf("caches.path is required unless caches.in_memory is set")
	}
	if cfg.Caches.MaxEntrySize <= 0 {
		return fmt.Errorf("caches.max_entry_size must be positive, got %d", cfg.Caches.MaxEntrySize)
	}
	if !cfg.Queue.InMemory && cfg.Queue.Path == "" {
		return fmt.Errorf("queue.path is required unless queue.in_memory is set")
	}
	return nil
}

func validateAbsoluteURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", field, raw)
	}
	return nil
}

package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"resty.dev/v3"

	"github.com/pkexplorer/offworker/internal/logger"
	"github.com/pkexplorer/offworker/internal/telemetry"
	"github.com/pkexplorer/offworker/pkg/cache"
	"github.com/pkexplorer/offworker/pkg/config"
	"github.com/pkexplorer/offworker/pkg/dispatch"
	"github.com/pkexplorer/offworker/pkg/gateway"
	"github.com/pkexplorer/offworker/pkg/lifecycle"
	"github.com/pkexplorer/offworker/pkg/metrics"
	"github.com/pkexplorer/offworker/pkg/notify"
	"github.com/pkexplorer/offworker/pkg/replay"
	"github.com/pkexplorer/offworker/pkg/worker"
	"github.com/spf13/cobra"

	// Import prometheus metrics to register init() functions
	_ "github.com/pkexplorer/offworker/pkg/metrics/prometheus"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the offworker gateway",
	Long: `Start the offworker gateway with the specified configuration.

By default, the gateway runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/offworker/config.yaml.

Examples:
  # Start in background (default)
  offworker start

  # Start in foreground
  offworker start --foreground

  # Start with custom config file
  offworker start --config /etc/offworker/config.yaml

  # Start with environment variable overrides
  OFFWORKER_LOGGING_LEVEL=DEBUG offworker start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/offworker/offworker.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/offworker/offworker.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "offworker",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "offworker",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("offworker - Offline gateway for PK Explorer")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	// Initialize metrics (if enabled)
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer, err = metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port))
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Open the durable cache namespaces
	caches, err := openCacheStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open cache store: %w", err)
	}
	defer func() {
		if err := caches.Close(); err != nil {
			logger.Error("cache store close error", "error", err)
		}
	}()

	static, err := caches.Open(cache.StaticNamespace)
	if err != nil {
		return fmt.Errorf("failed to open static namespace: %w", err)
	}
	tiles, err := caches.Open(cache.TileNamespace)
	if err != nil {
		return fmt.Errorf("failed to open tile namespace: %w", err)
	}
	logger.Info("Cache store opened", "path", cfg.Caches.Path, "in_memory", cfg.Caches.InMemory, "max_entry_size", cfg.Caches.MaxEntrySize)

	// Open the durable write queue
	queueStore, err := openQueueStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open queue store: %w", err)
	}
	defer func() {
		if err := queueStore.Close(); err != nil {
			logger.Error("queue store close error", "error", err)
		}
	}()
	logger.Info("Queue store opened", "path", cfg.Queue.Path, "in_memory", cfg.Queue.InMemory)

	// Assemble the worker: dispatcher, replay engine, lifecycle manager,
	// push relay and client registry, all bound to one registration.
	fetcher := &http.Client{Timeout: cfg.Gateway.RequestTimeout}
	dispatcher := dispatch.New(fetcher, static, tiles, dispatch.Config{
		TileHost:     cfg.Origins.TileHost,
		BackendHosts: cfg.Origins.BackendHosts,
		AppShellURL:  cfg.Origins.AppShellURL(),
	}, metrics.NewDispatchMetrics())

	replayClient := resty.New().SetTimeout(cfg.Replay.Timeout)
	defer func() {
		if err := replayClient.Close(); err != nil {
			logger.Error("replay client close error", "error", err)
		}
	}()
	engine := replay.New(queueStore, replayClient, replay.Config{
		Endpoint: cfg.Replay.Endpoint,
	}, metrics.NewReplayMetrics())

	clients := gateway.NewClientRegistry()
	relay := notify.New(clients, clients)

	reg := worker.New()
	mgr := lifecycle.New(reg, caches, fetcher, clients, lifecycle.Config{
		Manifest: cfg.Precache.ResolvedManifest(cfg.Origins.Origin),
	})
	gateway.WireEvents(reg, mgr, engine, relay)

	// Boot the registration: precache and claim existing windows
	if err := mgr.Startup(ctx); err != nil {
		return fmt.Errorf("failed to activate worker: %w", err)
	}
	logger.Info("Worker activated", "state", string(reg.State()), "origin", cfg.Origins.Origin, "tile_host", cfg.Origins.TileHost)

	server := gateway.NewServer(cfg.Gateway, gateway.Deps{
		Registration: reg,
		Dispatcher:   dispatcher,
		Fetcher:      fetcher,
		Store:        queueStore,
		Clients:      clients,
	})

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Start metrics server in background (if enabled)
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer shutdownCancel()
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				logger.Error("Metrics server shutdown error", "error", err)
			}
		}()
	}

	// Start gateway in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Gateway is running. Press Ctrl+C to stop.", "port", cfg.Gateway.Port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for server to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Gateway shutdown error", "error", err)
			return err
		}
		logger.Info("Gateway stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Gateway error", "error", err)
			return err
		}
		logger.Info("Gateway stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// startDaemon starts the gateway as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()

	// Create state directory if it doesn't exist
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Set default PID file if not specified
	pidPath := pidFile
	if pidPath == "" {
		pidPath = filepath.Join(stateDir, "offworker.pid")
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				// Check if process is still running
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("offworker is already running (PID %d)\nUse 'offworker stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	// Set default log file if not specified
	logPath := logFile
	if logPath == "" {
		logPath = filepath.Join(stateDir, "offworker.log")
	}

	// Get the executable path
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Build arguments for the daemon process
	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	// Create the daemon process
	cmd := exec.Command(executable, daemonArgs...)

	// Open log file for stdout/stderr
	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// Start the daemon
	if err := cmd.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	_ = logFileHandle.Close()

	fmt.Printf("offworker started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'offworker stop' to stop the gateway")
	fmt.Println("Use 'offworker status' to check gateway status")

	return nil
}

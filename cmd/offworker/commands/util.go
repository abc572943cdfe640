package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkexplorer/offworker/internal/logger"
	"github.com/pkexplorer/offworker/pkg/cache"
	cachebadger "github.com/pkexplorer/offworker/pkg/cache/badger"
	cachememory "github.com/pkexplorer/offworker/pkg/cache/memory"
	"github.com/pkexplorer/offworker/pkg/config"
	"github.com/pkexplorer/offworker/pkg/queue"
	queuebadger "github.com/pkexplorer/offworker/pkg/queue/badger"
	queuememory "github.com/pkexplorer/offworker/pkg/queue/memory"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// GetDefaultStateDir returns the default state directory path.
func GetDefaultStateDir() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "/tmp"
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateDir, "offworker")
}

// GetDefaultPidFile returns the default PID file path.
func GetDefaultPidFile() string {
	return filepath.Join(GetDefaultStateDir(), "offworker.pid")
}

// GetDefaultLogFile returns the default log file path for daemon mode.
func GetDefaultLogFile() string {
	return filepath.Join(GetDefaultStateDir(), "offworker.log")
}

// openCacheStore opens the cache manager selected by the configuration.
func openCacheStore(cfg *config.Config) (cache.Manager, error) {
	if cfg.Caches.InMemory {
		return cachememory.New(), nil
	}
	return cachebadger.New(cachebadger.Config{
		Dir:          cfg.Caches.Path,
		MaxEntrySize: cfg.Caches.MaxEntrySize,
	})
}

// openQueueStore opens the queue store selected by the configuration.
// The on-disk database lives under the configured path in a directory
// named after the queue database.
func openQueueStore(cfg *config.Config) (queue.Store, error) {
	if cfg.Queue.InMemory {
		return queuememory.New(), nil
	}
	return queuebadger.New(queuebadger.Config{
		Dir: filepath.Join(cfg.Queue.Path, queue.DatabaseName),
	})
}

package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkexplorer/offworker/pkg/config"
	"github.com/pkexplorer/offworker/pkg/queue"
)

func TestOpenQueueStoreUsesDatabaseName(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Queue.Path = t.TempDir()

	store, err := openQueueStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// The database directory carries the queue database name under the
	// configured base path.
	info, err := os.Stat(filepath.Join(cfg.Queue.Path, queue.DatabaseName))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenQueueStoreInMemory(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Queue.InMemory = true

	store, err := openQueueStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
}

// Package badger implements durable cache namespaces on BadgerDB.
//
// All namespaces share one Badger database. Entries live under
// "entry/<namespace>/<key>"; a marker key under "ns/<namespace>" records
// that the namespace exists so it can be enumerated even when empty.
// Dropping a namespace removes both prefixes atomically from the caller's
// perspective (Badger's DropPrefix).
package badger

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/pkexplorer/offworker/internal/bytesize"
	"github.com/pkexplorer/offworker/internal/logger"
	"github.com/pkexplorer/offworker/pkg/cache"
)

const (
	entryPrefix  = "entry/"
	markerPrefix = "ns/"
)

// Config holds BadgerDB cache store configuration.
type Config struct {
	// Dir is the directory for the Badger database files.
	// Ignored when InMemory is set.
	Dir string

	// MaxEntrySize is the per-entry size ceiling. Entries whose encoded
	// form exceeds it fail with ErrQuotaExceeded. Zero means no ceiling.
	MaxEntrySize bytesize.ByteSize

	// InMemory runs Badger without disk persistence. Used by tests and
	// ephemeral worker runs.
	InMemory bool
}

// Store is a cache.Manager backed by a single BadgerDB instance.
type Store struct {
	db           *badgerdb.DB
	maxEntrySize int64
	closed       atomic.Bool
}

var _ cache.Manager = (*Store)(nil)

// New opens (or creates) the Badger-backed cache store.
func New(cfg Config) (*Store, error) {
	opts := badgerdb.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithLogger(badgerLogger{})

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}

	return &Store{
		db:           db,
		maxEntrySize: cfg.MaxEntrySize.Int64(),
	}, nil
}

// Open returns a handle to the named namespace, creating its marker if absent.
func (s *Store) Open(name string) (cache.Namespace, error) {
	if s.closed.Load() {
		return nil, cache.ErrClosed
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(markerKey(name), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open namespace %q: %w", name, err)
	}

	return &namespace{store: s, name: name}, nil
}

// Names returns the names of all namespaces present in the store.
func (s *Store) Names() ([]string, error) {
	if s.closed.Load() {
		return nil, cache.ErrClosed
	}

	var names []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(markerPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), markerPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate namespaces: %w", err)
	}
	return names, nil
}

// Drop deletes a namespace and all its entries.
func (s *Store) Drop(name string) error {
	if s.closed.Load() {
		return cache.ErrClosed
	}

	if err := s.db.DropPrefix([]byte(entryPrefix + name + "/")); err != nil {
		return fmt.Errorf("failed to drop namespace %q: %w", name, err)
	}
	// Markers have no trailing separator, so a prefix drop here would
	// also take out any namespace whose name extends this one. Delete
	// the exact key.
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(markerKey(name))
	})
	if err != nil {
		return fmt.Errorf("failed to drop namespace marker %q: %w", name, err)
	}
	return nil
}

// DropAll deletes every namespace in the store.
func (s *Store) DropAll() error {
	if s.closed.Load() {
		return cache.ErrClosed
	}
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("failed to drop all namespaces: %w", err)
	}
	return nil
}

// Close releases the Badger database. Subsequent calls are no-ops.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// ============================================================================
// Namespace
// ============================================================================

// namespace is one named key space inside the shared Badger database.
type namespace struct {
	store *Store
	name  string
}

func (n *namespace) Name() string {
	return n.name
}

func (n *namespace) Match(ctx context.Context, key string) (*cache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n.store.closed.Load() {
		return nil, cache.ErrClosed
	}

	var entry *cache.Entry
	err := n.store.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(n.entryKey(key))
		if err == badgerdb.ErrKeyNotFound {
			return cache.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			e, decErr := decodeEntry(val)
			if decErr != nil {
				return decErr
			}
			entry = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (n *namespace) Put(ctx context.Context, key string, entry *cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.store.closed.Load() {
		return cache.ErrClosed
	}
	if entry == nil || entry.Status != 200 {
		return cache.ErrNotCacheable
	}

	data, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if n.store.maxEntrySize > 0 && int64(len(data)) > n.store.maxEntrySize {
		return cache.ErrQuotaExceeded
	}

	return n.store.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(n.entryKey(key), data)
	})
}

func (n *namespace) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.store.closed.Load() {
		return cache.ErrClosed
	}

	return n.store.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(n.entryKey(key))
	})
}

func (n *namespace) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n.store.closed.Load() {
		return nil, cache.ErrClosed
	}

	prefix := []byte(entryPrefix + n.name + "/")
	var keys []string
	err := n.store.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (n *namespace) Len(ctx context.Context) (int, error) {
	keys, err := n.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (n *namespace) entryKey(key string) []byte {
	return []byte(entryPrefix + n.name + "/" + key)
}

func markerKey(name string) []byte {
	return []byte(markerPrefix + name)
}

// ============================================================================
// Badger logging adapter
// ============================================================================

// badgerLogger routes Badger's internal logging through the structured
// logger at debug level so store internals don't drown worker logs.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logger.Error(fmt.Sprintf(strings.TrimSpace(format), args...))
}

func (badgerLogger) Warningf(format string, args ...any) {
	logger.Warn(fmt.Sprintf(strings.TrimSpace(format), args...))
}

func (badgerLogger) Infof(format string, args ...any) {
	logger.Debug(fmt.Sprintf(strings.TrimSpace(format), args...))
}

func (badgerLogger) Debugf(format string, args ...any) {
	logger.Debug(fmt.Sprintf(strings.TrimSpace(format), args...))
}

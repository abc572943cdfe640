// Package badger implements the durable write queue on BadgerDB.
//
// Records live under "points/<seq>-<id>" where seq is a zero-padded
// monotonic sequence number, so lexicographic key order is insertion
// order and a plain prefix scan yields FIFO replay order.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/pkexplorer/offworker/internal/logger"
	"github.com/pkexplorer/offworker/pkg/queue"
)

const (
	recordPrefix = queue.Collection + "/"
	seqKey       = "_seq/" + queue.Collection
	seqBandwidth = 64
)

// Config holds BadgerDB queue store configuration.
type Config struct {
	// Dir is the directory for the queue database files. Ignored when
	// InMemory is set.
	Dir string

	// InMemory runs Badger without disk persistence.
	InMemory bool
}

// Store is a queue.Store backed by BadgerDB.
type Store struct {
	db     *badgerdb.DB
	seq    *badgerdb.Sequence
	closed atomic.Bool
}

var _ queue.Store = (*Store)(nil)

// New opens (or creates) the Badger-backed queue store.
func New(cfg Config) (*Store, error) {
	opts := badgerdb.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithLogger(badgerLogger{})

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue store: %w", err)
	}

	seq, err := db.GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open queue sequence: %w", err)
	}

	return &Store{db: db, seq: seq}, nil
}

// Put appends a new record and returns it with its assigned ID.
func (s *Store) Put(ctx context.Context, payload json.RawMessage) (*queue.PendingWrite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, queue.ErrClosed
	}

	n, err := s.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to advance queue sequence: %w", err)
	}

	record := &queue.PendingWrite{
		ID:        uuid.NewString(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode queue record: %w", err)
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(recordKey(n, record.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store queue record: %w", err)
	}
	return record, nil
}

// List returns all pending records in insertion order.
func (s *Store) List(ctx context.Context) ([]*queue.PendingWrite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, queue.ErrClosed
	}

	var records []*queue.PendingWrite
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record queue.PendingWrite
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				records = append(records, &record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list queue records: %w", err)
	}
	return records, nil
}

// Delete removes a record by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return queue.ErrClosed
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if strings.HasSuffix(key, "-"+id) {
				return txn.Delete([]byte(key))
			}
		}
		return queue.ErrNotFound
	})
}

// Count returns the number of pending records.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.closed.Load() {
		return 0, queue.ErrClosed
	}

	count := 0
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue records: %w", err)
	}
	return count, nil
}

// Close releases the sequence lease and the database. Subsequent
// calls are no-ops.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.seq.Release(); err != nil {
		logger.Warn("Failed to release queue sequence", logger.Err(err))
	}
	return s.db.Close()
}

func recordKey(seq uint64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d-%s", recordPrefix, seq, id))
}

// badgerLogger routes Badger's internal logging through the structured
// logger at debug level.
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

// Package memory implements the write queue in process memory. It keeps
// the same FIFO semantics as the durable Badger store but loses records
// on restart, which is acceptable for tests and throwaway runs.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkexplorer/offworker/pkg/queue"
)

// Store is an in-memory queue.Store.
type Store struct {
	mu      sync.Mutex
	records []*queue.PendingWrite
	closed  bool
}

var _ queue.Store = (*Store)(nil)

// New creates an empty in-memory queue.
func New() *Store {
	return &Store{}
}

func (s *Store) Put(ctx context.Context, payload json.RawMessage) (*queue.PendingWrite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, queue.ErrClosed
	}

	record := &queue.PendingWrite{
		ID:        uuid.NewString(),
		Payload:   append(json.RawMessage(nil), payload...),
		CreatedAt: time.Now().UTC(),
	}
	s.records = append(s.records, record)
	return record, nil
}

func (s *Store) List(ctx context.Context) ([]*queue.PendingWrite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, queue.ErrClosed
	}

	out := make([]*queue.PendingWrite, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return queue.ErrClosed
	}

	for i, record := range s.records {
		if record.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return queue.ErrNotFound
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, queue.ErrClosed
	}
	return len(s.records), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}

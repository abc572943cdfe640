// Package memory implements cache namespaces held entirely in process
// memory. It mirrors the durable Badger store's semantics and is used by
// tests and by worker runs that do not want on-disk state.
package memory

import (
	"context"
	"sync"

	"github.com/pkexplorer/offworker/pkg/cache"
)

// Store is an in-memory cache.Manager.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]*cache.Entry
	closed     bool
}

var _ cache.Manager = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{namespaces: make(map[string]map[string]*cache.Entry)}
}

func (s *Store) Open(name string) (cache.Namespace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, cache.ErrClosed
	}
	if _, ok := s.namespaces[name]; !ok {
		s.namespaces[name] = make(map[string]*cache.Entry)
	}
	return &namespace{store: s, name: name}, nil
}

func (s *Store) Names() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cache.ErrClosed
	}
	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) Drop(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cache.ErrClosed
	}
	delete(s.namespaces, name)
	return nil
}

func (s *Store) DropAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cache.ErrClosed
	}
	s.namespaces = make(map[string]map[string]*cache.Entry)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.namespaces = nil
	return nil
}

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
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	if n.store.closed {
		return nil, cache.ErrClosed
	}
	entry, ok := n.store.namespaces[n.name][key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return entry.Clone(), nil
}

func (n *namespace) Put(ctx context.Context, key string, entry *cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry == nil || entry.Status != 200 {
		return cache.ErrNotCacheable
	}
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	if n.store.closed {
		return cache.ErrClosed
	}
	entries, ok := n.store.namespaces[n.name]
	if !ok {
		entries = make(map[string]*cache.Entry)
		n.store.namespaces[n.name] = entries
	}
	entries[key] = entry.Clone()
	return nil
}

func (n *namespace) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	if n.store.closed {
		return cache.ErrClosed
	}
	delete(n.store.namespaces[n.name], key)
	return nil
}

func (n *namespace) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	if n.store.closed {
		return nil, cache.ErrClosed
	}
	entries := n.store.namespaces[n.name]
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	return keys, nil
}

func (n *namespace) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	if n.store.closed {
		return 0, cache.ErrClosed
	}
	return len(n.store.namespaces[n.name]), nil
}

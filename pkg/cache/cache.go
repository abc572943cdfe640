// Package cache implements named, durable request→response cache namespaces.
//
// A namespace is a versioned mapping from a request identity (method + URL)
// to a stored response snapshot. The worker maintains two live namespaces:
// one for the application shell and third-party static assets, one for map
// tile imagery. Namespace names double as version tags: at activation time
// every on-disk namespace whose name is not in the recognized set is
// deleted in full.
//
// Key Design Principles:
//   - Only successful (status 200) responses are stored
//   - Only idempotent (GET) requests are cached; the key embeds the method
//   - Writes are best-effort: callers must treat Put failures as non-fatal
//   - Implementations must be safe for concurrent use
package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Recognized namespace names. Anything else found on disk at activation
// time belongs to a previous worker generation and is purged.
const (
	StaticNamespace = "pk-explorer-v1"
	TileNamespace   = "pk-maps-v1"
)

// RecognizedNamespaces returns the set of namespace names the current
// worker generation owns.
func RecognizedNamespaces() []string {
	return []string{StaticNamespace, TileNamespace}
}

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrNotFound is returned when a key has no entry in a namespace.
	ErrNotFound = errors.New("cache entry not found")

	// ErrNotCacheable is returned when a response snapshot is not eligible
	// for storage (non-200 status).
	ErrNotCacheable = errors.New("response not cacheable")

	// ErrQuotaExceeded is returned when an entry exceeds the configured
	// per-entry size ceiling. Callers log and move on; the response path
	// is never affected.
	ErrQuotaExceeded = errors.New("cache entry exceeds quota")

	// ErrClosed is returned when operations are attempted on a closed manager.
	ErrClosed = errors.New("cache manager is closed")
)

// ============================================================================
// Types
// ============================================================================

// Entry is a stored response snapshot: status, headers, and body.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Clone returns a deep copy of the entry. Responses are cloned before
// storage so the live response body can be streamed to the caller while
// the copy is written in the background.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := &Entry{
		Status:   e.Status,
		Header:   make(http.Header, len(e.Header)),
		Body:     make([]byte, len(e.Body)),
		StoredAt: e.StoredAt,
	}
	for k, v := range e.Header {
		vals := make([]string, len(v))
		copy(vals, v)
		clone.Header[k] = vals
	}
	copy(clone.Body, e.Body)
	return clone
}

// RequestKey builds the request identity key for a namespace lookup.
// The method is part of the key even though only GET requests are cached,
// so a stored entry can never be served for a different method.
func RequestKey(method, url string) string {
	return method + " " + url
}

// ============================================================================
// Interfaces
// ============================================================================

// Namespace is a named durable store of request→response pairs.
//
// Thread Safety: implementations must be safe for concurrent use by
// multiple goroutines; operations on different keys must not block
// each other beyond what the underlying store requires.
type Namespace interface {
	// Name returns the namespace name (which is also its version tag).
	Name() string

	// Match looks up the entry for a request key.
	// Returns ErrNotFound if no entry exists.
	Match(ctx context.Context, key string) (*Entry, error)

	// Put stores an entry under a request key, replacing any existing one.
	// Returns ErrNotCacheable for non-200 entries and ErrQuotaExceeded
	// when the entry is over the configured size ceiling.
	Put(ctx context.Context, key string, entry *Entry) error

	// Delete removes the entry for a key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error

	// Keys returns all request keys currently stored in the namespace.
	Keys(ctx context.Context) ([]string, error)

	// Len returns the number of entries in the namespace.
	Len(ctx context.Context) (int, error)
}

// Manager owns the set of cache namespaces backed by one store.
//
// Open is idempotent: opening an existing namespace returns a handle to
// the same underlying data. Names enumerates every namespace present in
// the store, including ones created by previous worker generations —
// that is what activation-time eviction iterates over.
type Manager interface {
	// Open returns a handle to the named namespace, creating it if absent.
	Open(name string) (Namespace, error)

	// Names returns the names of all namespaces present in the store.
	Names() ([]string, error)

	// Drop deletes a namespace and all its entries.
	Drop(name string) error

	// DropAll deletes every namespace in the store.
	DropAll() error

	// Close releases the underlying store. Further operations return ErrClosed.
	Close() error
}

// EvictUnrecognized drops every namespace whose name is not in keep.
// Returns the names of the dropped namespaces. Used at activation time
// to purge stale cache generations; eviction is all-or-nothing per
// namespace, never partial.
func EvictUnrecognized(m Manager, keep []string) ([]string, error) {
	names, err := m.Names()
	if err != nil {
		return nil, err
	}

	recognized := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		recognized[name] = struct{}{}
	}

	var dropped []string
	for _, name := range names {
		if _, ok := recognized[name]; ok {
			continue
		}
		if err := m.Drop(name); err != nil {
			return dropped, err
		}
		dropped = append(dropped, name)
	}
	return dropped, nil
}

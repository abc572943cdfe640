// Package queue defines the durable write queue that holds point
// submissions captured while the backend was unreachable. Records are
// kept in first-in first-out order and survive process restarts; the
// replay engine drains them once connectivity returns.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// DatabaseName is the name of the on-disk queue database.
const DatabaseName = "pk_explorer"

// Collection is the record collection pending writes are stored in.
const Collection = "points"

// Common queue errors.
var (
	// ErrNotFound is returned when a record ID does not exist.
	ErrNotFound = errors.New("queue: record not found")

	// ErrClosed is returned after the store has been closed.
	ErrClosed = errors.New("queue: store is closed")
)

// PendingWrite is one captured submission awaiting replay. Payload holds
// the original request body verbatim so replay can resend it unchanged.
type PendingWrite struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is the durable queue. Implementations must preserve insertion
// order across List calls and across restarts.
type Store interface {
	// Put appends a new record and returns it with its assigned ID.
	Put(ctx context.Context, payload json.RawMessage) (*PendingWrite, error)

	// List returns all pending records in insertion order.
	List(ctx context.Context) ([]*PendingWrite, error)

	// Delete removes a record by ID. Deleting an unknown ID returns
	// ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Count returns the number of pending records.
	Count(ctx context.Context) (int, error)

	// Close releases the store.
	Close() error
}

package store

import (
	"context"
	"iter"
	"time"
)

// AnyVersion passed as the expected version to Replace skips the concurrency check.
const AnyVersion int64 = -1

// Record is the storage shape of one entity: its key, its concurrency token,
// the serialized document, and the lifecycle timestamps owned by the store.
type Record struct {
	Key       string
	Version   int64
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter selects records whose top-level document fields equal the given values.
// An empty filter matches every record.
type Filter map[string]any

// Query narrows a List call.
type Query struct {
	Filter Filter
	// Limit caps the number of records; zero means no cap.
	Limit int
}

// EntityStore is the adapter every storage backend implements. Each call is
// atomic on its own; tables are never shared between entity kinds.
//
// Implementations map backend failures onto ErrNotFound, ErrConflict,
// ErrTimeout and ErrUnavailable.
type EntityStore interface {
	// Insert stores a new record. It fails with ErrConflict when the key exists.
	Insert(ctx context.Context, table string, rec Record) (Record, error)

	// Get returns the record stored under key or ErrNotFound.
	Get(ctx context.Context, table, key string) (Record, error)

	// List returns a lazy sequence over matching records in insertion order.
	// Every range over the sequence issues a fresh query.
	List(ctx context.Context, table string, q Query) iter.Seq2[Record, error]

	// Replace overwrites the document stored under rec.Key and bumps its version.
	// When expected is not AnyVersion, the stored version must equal it or the
	// call fails with ErrConflict. A missing key fails with ErrNotFound.
	Replace(ctx context.Context, table string, rec Record, expected int64) (Record, error)

	// Delete removes the record stored under key or returns ErrNotFound.
	Delete(ctx context.Context, table, key string) error
}

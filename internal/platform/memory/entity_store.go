package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/phrazzld/bookings-api/internal/store"
)

// table keeps records plus their insertion order so List is deterministic.
type table struct {
	records map[string]store.Record
	order   []string
}

// EntityStore implements store.EntityStore over process memory.
// Every call takes the store lock once, which makes each operation atomic.
type EntityStore struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// Ensure EntityStore implements store.EntityStore interface
var _ store.EntityStore = (*EntityStore)(nil)

// NewEntityStore creates an empty in-memory store.
func NewEntityStore() *EntityStore {
	return &EntityStore{tables: make(map[string]*table)}
}

func (s *EntityStore) table(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{records: make(map[string]store.Record)}
		s.tables[name] = t
	}
	return t
}

// Insert implements store.EntityStore.Insert.
func (s *EntityStore) Insert(ctx context.Context, tableName string, rec store.Record) (store.Record, error) {
	if err := checkContext(ctx); err != nil {
		return store.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(tableName)
	if _, exists := t.records[rec.Key]; exists {
		return store.Record{}, fmt.Errorf("%w: key %s already exists", store.ErrConflict, rec.Key)
	}

	rec.Data = clone(rec.Data)
	t.records[rec.Key] = rec
	t.order = append(t.order, rec.Key)
	return copyRecord(rec), nil
}

// Get implements store.EntityStore.Get.
func (s *EntityStore) Get(ctx context.Context, tableName, key string) (store.Record, error) {
	if err := checkContext(ctx); err != nil {
		return store.Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[tableName]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	rec, ok := t.records[key]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return copyRecord(rec), nil
}

// List implements store.EntityStore.List. Each traversal works on a snapshot
// taken when the traversal starts.
func (s *EntityStore) List(ctx context.Context, tableName string, q store.Query) iter.Seq2[store.Record, error] {
	return func(yield func(store.Record, error) bool) {
		want, err := encodeFilter(q.Filter)
		if err != nil {
			yield(store.Record{}, err)
			return
		}

		emitted := 0
		for _, rec := range s.snapshot(tableName) {
			if q.Limit > 0 && emitted >= q.Limit {
				return
			}
			if err := checkContext(ctx); err != nil {
				yield(store.Record{}, err)
				return
			}
			if !matches(rec.Data, want) {
				continue
			}
			emitted++
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// snapshot copies the table's records in insertion order.
func (s *EntityStore) snapshot(tableName string) []store.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]store.Record, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, copyRecord(t.records[key]))
	}
	return out
}

// Replace implements store.EntityStore.Replace.
func (s *EntityStore) Replace(
	ctx context.Context,
	tableName string,
	rec store.Record,
	expected int64,
) (store.Record, error) {
	if err := checkContext(ctx); err != nil {
		return store.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	current, ok := t.records[rec.Key]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	if expected != store.AnyVersion && current.Version != expected {
		return store.Record{}, fmt.Errorf("%w: stored version %d, expected %d",
			store.ErrConflict, current.Version, expected)
	}

	current.Data = clone(rec.Data)
	current.Version++
	current.UpdatedAt = rec.UpdatedAt
	t.records[rec.Key] = current
	return copyRecord(current), nil
}

// Delete implements store.EntityStore.Delete.
func (s *EntityStore) Delete(ctx context.Context, tableName, key string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := t.records[key]; !ok {
		return store.ErrNotFound
	}
	delete(t.records, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// checkContext maps an expired context onto the store error kinds.
func checkContext(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", store.ErrTimeout, err)
	default:
		return err
	}
}

// encodeFilter renders each filter value the way it appears in a JSON document.
func encodeFilter(f store.Filter) (map[string][]byte, error) {
	if len(f) == 0 {
		return nil, nil
	}
	out := make(map[string][]byte, len(f))
	for field, value := range f {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("invalid filter value for %q: %w", field, err)
		}
		out[field] = raw
	}
	return out, nil
}

// matches reports whether every filtered top-level field of doc equals the wanted JSON value.
func matches(doc []byte, want map[string][]byte) bool {
	if len(want) == 0 {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false
	}
	for field, value := range want {
		got, ok := fields[field]
		if !ok {
			return false
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, got); err != nil {
			return false
		}
		if !bytes.Equal(compact.Bytes(), value) {
			return false
		}
	}
	return true
}

func copyRecord(rec store.Record) store.Record {
	rec.Data = clone(rec.Data)
	return rec
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

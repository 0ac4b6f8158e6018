package store_test

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bookings-api/internal/domain"
	"github.com/phrazzld/bookings-api/internal/platform/memory"
	"github.com/phrazzld/bookings-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var customerBinding = store.Binding[*domain.Customer, uuid.UUID]{
	Kind:   "customer",
	Table:  "customers",
	New:    func() *domain.Customer { return &domain.Customer{} },
	NewKey: uuid.New,
}

// flakyStore wraps an EntityStore and fails the first N calls of chosen operations.
type flakyStore struct {
	store.EntityStore

	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	failWith error
}

func newFlakyStore(inner store.EntityStore, failWith error) *flakyStore {
	return &flakyStore{
		EntityStore: inner,
		calls:       make(map[string]int),
		failures:    make(map[string]int),
		failWith:    failWith,
	}
}

func (f *flakyStore) failNext(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = n
}

func (f *flakyStore) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *flakyStore) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.failures[op] > 0 {
		f.failures[op]--
		return f.failWith
	}
	return nil
}

func (f *flakyStore) Insert(ctx context.Context, table string, rec store.Record) (store.Record, error) {
	if err := f.hit("insert"); err != nil {
		return store.Record{}, err
	}
	return f.EntityStore.Insert(ctx, table, rec)
}

func (f *flakyStore) Get(ctx context.Context, table, key string) (store.Record, error) {
	if err := f.hit("get"); err != nil {
		return store.Record{}, err
	}
	return f.EntityStore.Get(ctx, table, key)
}

func (f *flakyStore) List(ctx context.Context, table string, q store.Query) iter.Seq2[store.Record, error] {
	return func(yield func(store.Record, error) bool) {
		if err := f.hit("list"); err != nil {
			yield(store.Record{}, err)
			return
		}
		for rec, err := range f.EntityStore.List(ctx, table, q) {
			if !yield(rec, err) {
				return
			}
		}
	}
}

func (f *flakyStore) Replace(ctx context.Context, table string, rec store.Record, expected int64) (store.Record, error) {
	if err := f.hit("replace"); err != nil {
		return store.Record{}, err
	}
	return f.EntityStore.Replace(ctx, table, rec, expected)
}

func (f *flakyStore) Delete(ctx context.Context, table, key string) error {
	if err := f.hit("delete"); err != nil {
		return err
	}
	return f.EntityStore.Delete(ctx, table, key)
}

// recordingObserver captures operation outcomes.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveOperation(kind, op, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, kind+"."+op+"="+outcome)
}

func newCustomer(name string) *domain.Customer {
	return &domain.Customer{Name: name, Email: name + "@example.com"}
}

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := store.NewRepository(memory.NewEntityStore(), customerBinding,
		store.WithClock(func() time.Time { return fixed }))

	added, err := repo.Add(ctx, newCustomer("ada"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, added.ID, "Add should assign a key")
	assert.Equal(t, int64(1), added.Version)
	assert.Equal(t, fixed, added.CreatedAt)

	got, err := repo.GetByID(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, added, got)
}

func TestRepositoryAddKeepsProvidedKey(t *testing.T) {
	repo := store.NewRepository(memory.NewEntityStore(), customerBinding)
	c := newCustomer("grace")
	c.ID = uuid.New()

	added, err := repo.Add(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, c.ID, added.ID)
}

func TestRepositoryFailedAddLeavesKeyUnset(t *testing.T) {
	ctx := context.Background()
	flaky := newFlakyStore(memory.NewEntityStore(), store.ErrUnavailable)
	repo := store.NewRepository(flaky, customerBinding)

	flaky.failNext("insert", 1)
	c := newCustomer("ada")
	_, err := repo.Add(ctx, c)
	require.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, uuid.Nil, c.ID, "a generated key must not outlive a failed insert")

	// A caller-provided key is kept even when the insert fails.
	provided := uuid.New()
	c.ID = provided
	flaky.failNext("insert", 1)
	_, err = repo.Add(ctx, c)
	require.Error(t, err)
	assert.Equal(t, provided, c.ID)
}

func TestRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepository(memory.NewEntityStore(), customerBinding)

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.Update(ctx, uuid.New(), newCustomer("nobody"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = repo.Delete(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[string]string {
	attrs := make(map[string]string)
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	return attrs
}

func TestRepositoryRecordsSpans(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(ctx) }()

	repo := store.NewRepository(memory.NewEntityStore(), customerBinding,
		store.WithTracer(tp.Tracer("store-test")))

	_, err := repo.Add(ctx, newCustomer("ada"))
	require.NoError(t, err)
	_, err = repo.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Len(t, collect(t, repo.List(ctx, store.Query{})), 1)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, "customer.add", spans[0].Name())
	assert.Equal(t, map[string]string{
		"entity.kind":     "customer",
		"store.operation": store.OpAdd,
		"store.outcome":   "ok",
	}, spanAttributes(spans[0]))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, "customer."+store.OpGetByID, spans[1].Name())
	assert.Equal(t, map[string]string{
		"entity.kind":     "customer",
		"store.operation": store.OpGetByID,
		"store.outcome":   "not_found",
	}, spanAttributes(spans[1]))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "not_found", spans[1].Status().Description)

	assert.Equal(t, store.OpList, spanAttributes(spans[2])["store.operation"])
	assert.Equal(t, "ok", spanAttributes(spans[2])["store.outcome"])
}

func TestRepositoryDuplicateKeyConflict(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepository(memory.NewEntityStore(), customerBinding)

	first, err := repo.Add(ctx, newCustomer("ada"))
	require.NoError(t, err)

	dup := newCustomer("imposter")
	dup.ID = first.ID
	_, err = repo.Add(ctx, dup)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Name, "failed insert must not change stored state")
}

func TestRepositoryUpdate(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepository(memory.NewEntityStore(), customerBinding)

	added, err := repo.Add(ctx, newCustomer("ada"))
	require.NoError(t, err)

	t.Run("matching version bumps token", func(t *testing.T) {
		change := *added
		change.Name = "Ada King"
		updated, err := repo.Update(ctx, added.ID, &change)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)
		assert.Equal(t, added.CreatedAt, updated.CreatedAt)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		stale := *added // still version 1
		stale.Name = "stale"
		_, err := repo.Update(ctx, added.ID, &stale)
		assert.ErrorIs(t, err, store.ErrConflict)

		got, err := repo.GetByID(ctx, added.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada King", got.Name)
	})

	t.Run("zero version replaces unconditionally", func(t *testing.T) {
		blind := newCustomer("blind")
		updated, err := repo.Update(ctx, added.ID, blind)
		require.NoError(t, err)
		assert.Equal(t, int64(3), updated.Version)
		assert.Equal(t, added.ID, updated.ID)
	})
}

func TestRepositoryConcurrentStaleUpdates(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepository(memory.NewEntityStore(), customerBinding)

	added, err := repo.Add(ctx, newCustomer("ada"))
	require.NoError(t, err)

	const writers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := *added
			_, err := repo.Update(ctx, added.ID, &c)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, store.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load(), "exactly one writer holding version 1 may win")
	assert.Equal(t, int32(writers-1), conflicts.Load())
}

func TestRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepository(memory.NewEntityStore(), customerBinding)

	added, err := repo.Add(ctx, newCustomer("ada"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, added.ID))
	_, err = repo.GetByID(ctx, added.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func collect[E any](t *testing.T, seq iter.Seq2[E, error]) []E {
	t.Helper()
	var out []E
	for e, err := range seq {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestRepositoryListIsLazyAndRestartable(t *testing.T) {
	ctx := context.Background()
	flaky := newFlakyStore(memory.NewEntityStore(), nil)
	repo := store.NewRepository(flaky, customerBinding)

	for _, name := range []string{"ada", "grace", "barbara"} {
		_, err := repo.Add(ctx, newCustomer(name))
		require.NoError(t, err)
	}

	seq := repo.List(ctx, store.Query{})
	assert.Equal(t, 0, flaky.callCount("list"), "building the sequence must not query the store")

	first := collect(t, seq)
	second := collect(t, seq)
	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, flaky.callCount("list"), "each traversal queries again")

	names := make([]string, 0, 3)
	for _, c := range first {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"ada", "grace", "barbara"}, names)

	t.Run("early break", func(t *testing.T) {
		count := 0
		for range seq {
			count++
			break
		}
		assert.Equal(t, 1, count)
	})

	t.Run("filter and limit", func(t *testing.T) {
		filtered := collect(t, repo.List(ctx, store.Query{Filter: store.Filter{"name": "grace"}}))
		require.Len(t, filtered, 1)
		assert.Equal(t, "grace", filtered[0].Name)

		limited := collect(t, repo.List(ctx, store.Query{Limit: 2}))
		assert.Len(t, limited, 2)
	})
}

func TestRepositoryRetriesReadsOnce(t *testing.T) {
	ctx := context.Background()
	flaky := newFlakyStore(memory.NewEntityStore(), store.ErrTimeout)
	obs := &recordingObserver{}
	repo := store.NewRepository(flaky, customerBinding, store.WithObserver(obs))

	added, err := repo.Add(ctx, newCustomer("ada"))
	require.NoError(t, err)

	t.Run("get succeeds on second attempt", func(t *testing.T) {
		before := flaky.callCount("get")
		flaky.failNext("get", 1)
		got, err := repo.GetByID(ctx, added.ID)
		require.NoError(t, err)
		assert.Equal(t, added.ID, got.ID)
		assert.Equal(t, before+2, flaky.callCount("get"))
	})

	t.Run("get gives up after one retry", func(t *testing.T) {
		before := flaky.callCount("get")
		flaky.failNext("get", 2)
		_, err := repo.GetByID(ctx, added.ID)
		assert.ErrorIs(t, err, store.ErrTimeout)
		assert.Equal(t, before+2, flaky.callCount("get"))
		flaky.failNext("get", 0)
	})

	t.Run("list retried before first element", func(t *testing.T) {
		before := flaky.callCount("list")
		flaky.failNext("list", 1)
		got := collect(t, repo.List(ctx, store.Query{}))
		assert.Len(t, got, 1)
		assert.Equal(t, before+2, flaky.callCount("list"))
	})

	t.Run("list gives up after one retry", func(t *testing.T) {
		flaky.failNext("list", 2)
		var errs []error
		for _, err := range repo.List(ctx, store.Query{}) {
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], store.ErrTimeout)
		flaky.failNext("list", 0)
	})

	assert.Contains(t, obs.outcomes, "customer.get_by_id=timeout")
}

func TestRepositoryNeverRetriesWrites(t *testing.T) {
	ctx := context.Background()
	flaky := newFlakyStore(memory.NewEntityStore(), store.ErrTimeout)
	repo := store.NewRepository(flaky, customerBinding)

	added, err := repo.Add(ctx, newCustomer("ada"))
	require.NoError(t, err)

	flaky.failNext("insert", 1)
	_, err = repo.Add(ctx, newCustomer("grace"))
	assert.ErrorIs(t, err, store.ErrTimeout)
	assert.Equal(t, 2, flaky.callCount("insert"))

	flaky.failNext("replace", 1)
	_, err = repo.Update(ctx, added.ID, newCustomer("changed"))
	assert.ErrorIs(t, err, store.ErrTimeout)
	assert.Equal(t, 1, flaky.callCount("replace"))

	flaky.failNext("delete", 1)
	err = repo.Delete(ctx, added.ID)
	assert.ErrorIs(t, err, store.ErrTimeout)
	assert.Equal(t, 1, flaky.callCount("delete"))

	_, err = repo.GetByID(ctx, added.ID)
	assert.NoError(t, err, "failed delete must leave the entity in place")
}

// blockingStore never answers Get before the context expires.
type blockingStore struct {
	store.EntityStore
	calls atomic.Int32
}

func (b *blockingStore) Get(ctx context.Context, _, _ string) (store.Record, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return store.Record{}, ctx.Err()
}

func TestRepositoryBoundsEveryCall(t *testing.T) {
	blocking := &blockingStore{EntityStore: memory.NewEntityStore()}
	repo := store.NewRepository(blocking, customerBinding, store.WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := repo.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, store.ErrTimeout)
	assert.Equal(t, int32(2), blocking.calls.Load(), "timed out read is retried once")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRepositoryDoesNotRetryWhenCallerIsGone(t *testing.T) {
	flaky := newFlakyStore(memory.NewEntityStore(), store.ErrTimeout)
	repo := store.NewRepository(flaky, customerBinding)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flaky.failNext("get", 2)
	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrTimeout)
	assert.Equal(t, 1, flaky.callCount("get"))
}

func TestNewRepositoryRejectsIncompleteBinding(t *testing.T) {
	assert.Panics(t, func() {
		store.NewRepository(memory.NewEntityStore(), store.Binding[*domain.Customer, uuid.UUID]{Kind: "customer"})
	})
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/phrazzld/bookings-api/internal/platform/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repository operation names, used in errors, logs, spans and metrics.
const (
	OpAdd     = "add"
	OpGetByID = "get_by_id"
	OpList    = "list"
	OpUpdate  = "update"
	OpDelete  = "delete"
)

// DefaultOperationTimeout bounds a store call when no timeout is configured.
const DefaultOperationTimeout = 5 * time.Second

// Key is the identity type of an entity.
type Key interface {
	comparable
	String() string
}

// Entity is implemented by pointer types of the domain entities.
type Entity[K Key] interface {
	Key() K
	SetKey(K)
	ConcurrencyToken() int64
	SetConcurrencyToken(int64)
	SetTimestamps(created, updated time.Time)
}

// Binding ties one entity kind to its table and constructors.
type Binding[E Entity[K], K Key] struct {
	Kind   string
	Table  string
	New    func() E
	NewKey func() K
}

// Observer receives one call per finished repository operation.
type Observer interface {
	ObserveOperation(kind, op, outcome string, elapsed time.Duration)
}

// Option configures a Repository.
type Option func(*options)

type options struct {
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
}

// WithTimeout bounds every store call made by the repository.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver reports every operation outcome to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithTracer overrides the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// Repository gives one entity kind uniform CRUD semantics over an EntityStore.
// It holds no mutable state after construction and is safe for concurrent use.
//
// Reads (GetByID, List) that time out are retried once; writes never are.
type Repository[E Entity[K], K Key] struct {
	binding Binding[E, K]
	store   EntityStore
	opts    options
}

// NewRepository creates a repository for binding b backed by s.
func NewRepository[E Entity[K], K Key](s EntityStore, b Binding[E, K], opts ...Option) *Repository[E, K] {
	if s == nil {
		panic("entity store cannot be nil")
	}
	if b.New == nil || b.NewKey == nil || b.Table == "" || b.Kind == "" {
		panic(fmt.Sprintf("incomplete binding for kind %q", b.Kind))
	}

	o := options{
		timeout: DefaultOperationTimeout,
		now:     time.Now,
		logger:  slog.Default(),
		tracer:  otel.Tracer("github.com/phrazzld/bookings-api/internal/store"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(slog.String("component", "repository"), slog.String("entity", b.Kind))

	return &Repository[E, K]{binding: b, store: s, opts: o}
}

// Kind returns the entity kind served by this repository.
func (r *Repository[E, K]) Kind() string { return r.binding.Kind }

// NewEntity returns an empty entity of the bound kind.
func (r *Repository[E, K]) NewEntity() E { return r.binding.New() }

// Add inserts e. A zero key is replaced with a freshly generated one, which
// is cleared again when the insert fails. The returned entity carries the
// stored version and timestamps.
func (r *Repository[E, K]) Add(ctx context.Context, e E) (E, error) {
	var zero K
	generated := e.Key() == zero
	if generated {
		e.SetKey(r.binding.NewKey())
	}
	fail := func(err error) (E, error) {
		if generated {
			e.SetKey(zero)
		}
		return e, err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fail(NewStoreError(r.binding.Kind, OpAdd, "failed to encode entity", err))
	}

	now := r.opts.now().UTC()
	rec := Record{Key: e.Key().String(), Version: 1, Data: data, CreatedAt: now, UpdatedAt: now}

	var stored Record
	err = r.do(ctx, OpAdd, false, func(ctx context.Context) error {
		var err error
		stored, err = r.store.Insert(ctx, r.binding.Table, rec)
		return err
	})
	if err != nil {
		return fail(err)
	}

	apply(e, stored)
	return e, nil
}

// GetByID returns the entity stored under key or an error matching ErrNotFound.
func (r *Repository[E, K]) GetByID(ctx context.Context, key K) (E, error) {
	var rec Record
	err := r.do(ctx, OpGetByID, true, func(ctx context.Context) error {
		var err error
		rec, err = r.store.Get(ctx, r.binding.Table, key.String())
		return err
	})
	if err != nil {
		var zero E
		return zero, err
	}
	return r.decode(OpGetByID, rec)
}

// List returns a lazy, finite sequence of entities matching q. Each range over
// the result queries the store again, so the sequence can be restarted.
//
// The operation timeout bounds one whole traversal. A timeout before the first
// element is yielded is retried once; after that the error is yielded as-is.
func (r *Repository[E, K]) List(ctx context.Context, q Query) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		start := time.Now()
		ctx, span := r.opts.tracer.Start(ctx, r.binding.Kind+"."+OpList,
			trace.WithAttributes(
				attribute.String("entity.kind", r.binding.Kind),
				attribute.String("store.operation", OpList),
			))
		var zero E

		for attempt := 1; ; attempt++ {
			yielded, stopped, err := r.traverse(ctx, q, yield)
			if stopped || err == nil {
				r.finish(ctx, OpList, start, span, nil)
				return
			}

			if !yielded && attempt == 1 && r.retryable(ctx, err) {
				logger.FromContextOrDefault(ctx, r.opts.logger).Warn("retrying read after timeout",
					slog.String("operation", OpList),
					slog.String("error", err.Error()))
				continue
			}

			err = NewStoreError(r.binding.Kind, OpList, messageFor(err), err)
			r.finish(ctx, OpList, start, span, err)
			yield(zero, err)
			return
		}
	}
}

// traverse runs one bounded pass over the store. stopped reports that the
// consumer ended iteration early.
func (r *Repository[E, K]) traverse(
	ctx context.Context,
	q Query,
	yield func(E, error) bool,
) (yielded, stopped bool, err error) {
	opCtx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	for rec, recErr := range r.store.List(opCtx, r.binding.Table, q) {
		if recErr != nil {
			return yielded, false, classify(recErr)
		}
		e, decErr := r.decode(OpList, rec)
		if decErr != nil {
			return yielded, false, decErr
		}
		yielded = true
		if !yield(e, nil) {
			return yielded, true, nil
		}
	}
	return yielded, false, nil
}

// Update replaces the entity stored under key with e. When e carries a
// non-zero version it must match the stored one, otherwise the call fails
// with an error matching ErrConflict.
func (r *Repository[E, K]) Update(ctx context.Context, key K, e E) (E, error) {
	e.SetKey(key)

	expected := e.ConcurrencyToken()
	if expected <= 0 {
		expected = AnyVersion
	}

	data, err := json.Marshal(e)
	if err != nil {
		return e, NewStoreError(r.binding.Kind, OpUpdate, "failed to encode entity", err)
	}

	rec := Record{Key: key.String(), Data: data, UpdatedAt: r.opts.now().UTC()}

	var stored Record
	err = r.do(ctx, OpUpdate, false, func(ctx context.Context) error {
		var err error
		stored, err = r.store.Replace(ctx, r.binding.Table, rec, expected)
		return err
	})
	if err != nil {
		return e, err
	}

	apply(e, stored)
	return e, nil
}

// Delete removes the entity stored under key.
func (r *Repository[E, K]) Delete(ctx context.Context, key K) error {
	return r.do(ctx, OpDelete, false, func(ctx context.Context) error {
		return r.store.Delete(ctx, r.binding.Table, key.String())
	})
}

// do runs fn under the operation timeout inside a span, retrying once on
// timeout when idempotent is set.
func (r *Repository[E, K]) do(ctx context.Context, op string, idempotent bool, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := r.opts.tracer.Start(ctx, r.binding.Kind+"."+op,
		trace.WithAttributes(
			attribute.String("entity.kind", r.binding.Kind),
			attribute.String("store.operation", op),
		))

	attempts := 1
	if idempotent {
		attempts = 2
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, r.opts.timeout)
		err = classify(fn(opCtx))
		cancel()

		if err == nil || attempt == attempts || !r.retryable(ctx, err) {
			break
		}
		logger.FromContextOrDefault(ctx, r.opts.logger).Warn("retrying read after timeout",
			slog.String("operation", op),
			slog.String("error", err.Error()))
	}

	if err != nil {
		err = NewStoreError(r.binding.Kind, op, messageFor(err), err)
	}
	r.finish(ctx, op, start, span, err)
	return err
}

// retryable reports whether err is a per-call timeout while the caller is still waiting.
func (r *Repository[E, K]) retryable(ctx context.Context, err error) bool {
	return errors.Is(err, ErrTimeout) && ctx.Err() == nil
}

func (r *Repository[E, K]) finish(ctx context.Context, op string, start time.Time, span trace.Span, err error) {
	outcome := Outcome(err)
	elapsed := time.Since(start)

	if span != nil {
		span.SetAttributes(attribute.String("store.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
	}

	if r.opts.observer != nil {
		r.opts.observer.ObserveOperation(r.binding.Kind, op, outcome, elapsed)
	}

	log := logger.FromContextOrDefault(ctx, r.opts.logger)
	switch outcome {
	case "ok", "not_found", "conflict":
		log.Debug("repository operation finished",
			slog.String("operation", op),
			slog.String("outcome", outcome),
			slog.Duration("elapsed", elapsed))
	default:
		log.Error("repository operation failed",
			slog.String("operation", op),
			slog.String("outcome", outcome),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
	}
}

func (r *Repository[E, K]) decode(op string, rec Record) (E, error) {
	e := r.binding.New()
	if err := json.Unmarshal(rec.Data, e); err != nil {
		var zero E
		return zero, NewStoreError(r.binding.Kind, op, "failed to decode stored entity", err)
	}
	apply(e, rec)
	return e, nil
}

type stamped interface {
	SetConcurrencyToken(int64)
	SetTimestamps(created, updated time.Time)
}

// apply copies the store-owned fields of rec onto e.
func apply(e stamped, rec Record) {
	e.SetConcurrencyToken(rec.Version)
	e.SetTimestamps(rec.CreatedAt, rec.UpdatedAt)
}

// classify maps context deadline errors onto ErrTimeout.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func messageFor(err error) string {
	switch Outcome(err) {
	case "not_found":
		return "entity does not exist"
	case "conflict":
		return "entity changed or already exists"
	case "timeout":
		return "store call exceeded its deadline"
	case "unavailable":
		return "store is unreachable"
	default:
		return "store call failed"
	}
}

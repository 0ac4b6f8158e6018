package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bookings-api/internal/domain"
	"github.com/phrazzld/bookings-api/internal/platform/logger"
	"github.com/phrazzld/bookings-api/internal/store"
)

// Entity is implemented by pointers to the domain entities.
type Entity interface {
	store.Entity[uuid.UUID]
	Validate() error
}

// softDeletable entities are retired by marking them instead of removing them.
type softDeletable interface {
	Deleted() bool
	MarkDeleted(at time.Time)
	Restore()
}

// Option configures a service.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *slog.Logger
}

// WithClock overrides the time source used for deletion marks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Service gives one entity kind its CRUD operations. Input is normalized and
// validated before it reaches the repository; kinds embedding
// domain.SoftDelete are retired on Delete and hidden from reads afterwards.
type Service[E Entity] struct {
	repo    *store.Repository[E, uuid.UUID]
	kind    domain.Kind
	soft    bool
	prepare func(E)
	check   func(context.Context, E) error
	opts    options

	// dependents fail while another kind still references the entity.
	dependents []func(context.Context, uuid.UUID) error

	// serial makes check and write one step within this process.
	serial  bool
	writeMu sync.Mutex
}

func newService[E Entity](
	repo *store.Repository[E, uuid.UUID],
	kind domain.Kind,
	prepare func(E),
	check func(context.Context, E) error,
	opts []Option,
) *Service[E] {
	if repo == nil {
		panic("repository cannot be nil")
	}
	var zero E
	_, soft := any(zero).(softDeletable)

	o := buildOptions(opts)
	o.logger = o.logger.With(slog.String("component", "service"), slog.String("entity", string(kind)))

	return &Service[E]{repo: repo, kind: kind, soft: soft, prepare: prepare, check: check, opts: o}
}

// Kind returns the entity kind served.
func (s *Service[E]) Kind() domain.Kind { return s.kind }

// SoftDeletes reports whether Delete retires entities instead of removing them.
func (s *Service[E]) SoftDeletes() bool { return s.soft }

// New returns an empty entity, ready to be decoded into.
func (s *Service[E]) New() E { return s.repo.NewEntity() }

// Create validates e and stores it under a fresh key.
func (s *Service[E]) Create(ctx context.Context, e E) (E, error) {
	e.SetKey(uuid.Nil)
	e.SetConcurrencyToken(0)
	if sd, ok := any(e).(softDeletable); ok {
		sd.Restore()
	}

	unlock := s.lockWrites()
	defer unlock()

	if err := s.admit(ctx, e); err != nil {
		return e, err
	}
	return s.repo.Add(ctx, e)
}

// Get returns the entity stored under id.
func (s *Service[E]) Get(ctx context.Context, id uuid.UUID) (E, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return e, err
	}
	if s.retired(e) {
		var zero E
		return zero, notFound(s.kind, store.OpGetByID, id)
	}
	return e, nil
}

// List returns the live entities matching q as a lazy, restartable sequence.
func (s *Service[E]) List(ctx context.Context, q store.Query) iter.Seq2[E, error] {
	inner := q
	if s.soft {
		// Retired rows are skipped here, so the store cannot apply the limit.
		inner.Limit = 0
	}

	return func(yield func(E, error) bool) {
		emitted := 0
		for e, err := range s.repo.List(ctx, inner) {
			if err != nil {
				var zero E
				yield(zero, err)
				return
			}
			if s.retired(e) {
				continue
			}
			if !yield(e, nil) {
				return
			}
			emitted++
			if q.Limit > 0 && emitted >= q.Limit {
				return
			}
		}
	}
}

// Update replaces the entity stored under id with e. A non-zero e version
// must match the stored one.
func (s *Service[E]) Update(ctx context.Context, id uuid.UUID, e E) (E, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return e, err
	}

	e.SetKey(id)
	if sd, ok := any(e).(softDeletable); ok {
		sd.Restore()
		// Pin the replace to the live row we just checked so a concurrent
		// retire cannot be undone.
		if e.ConcurrencyToken() <= 0 {
			e.SetConcurrencyToken(current.ConcurrencyToken())
		}
	}

	unlock := s.lockWrites()
	defer unlock()

	if err := s.admit(ctx, e); err != nil {
		return e, err
	}
	return s.repo.Update(ctx, id, e)
}

// Delete removes the entity stored under id, or retires it for soft-deleted
// kinds. It fails with store.ErrConflict while live entities of another kind
// still reference id.
func (s *Service[E]) Delete(ctx context.Context, id uuid.UUID) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, referenced := range s.dependents {
		if err := referenced(ctx, id); err != nil {
			return err
		}
	}

	if !s.soft {
		return s.repo.Delete(ctx, id)
	}

	any(current).(softDeletable).MarkDeleted(s.opts.now())
	if _, err := s.repo.Update(ctx, id, current); err != nil {
		return err
	}

	logger.FromContextOrDefault(ctx, s.opts.logger).Info("entity retired", slog.String("id", id.String()))
	return nil
}

// admit normalizes e, checks its fields, then runs cross-entity checks.
func (s *Service[E]) admit(ctx context.Context, e E) error {
	if s.prepare != nil {
		s.prepare(e)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if s.check != nil {
		return s.check(ctx, e)
	}
	return nil
}

func (s *Service[E]) retired(e E) bool {
	sd, ok := any(e).(softDeletable)
	return ok && sd.Deleted()
}

// requireReference fails with a validation error on field when id does not
// name a live entity of target's kind.
func requireReference[R Entity](ctx context.Context, target *Service[R], field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	_, err := target.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewValidationError(field,
			"references a "+string(target.kind)+" that does not exist", domain.ErrReferenceNotFound)
	}
	return err
}

// protect registers checks that block Delete while dependents exist.
func (s *Service[E]) protect(checks ...func(context.Context, uuid.UUID) error) {
	s.dependents = append(s.dependents, checks...)
}

func (s *Service[E]) lockWrites() func() {
	if !s.serial {
		return func() {}
	}
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

// referencedBy returns a check that fails with store.ErrConflict while a live
// entity of child's kind names id in field.
func referencedBy[C Entity](child *Service[C], field string) func(context.Context, uuid.UUID) error {
	return func(ctx context.Context, id uuid.UUID) error {
		q := store.Query{Filter: store.Filter{field: id.String()}, Limit: 1}
		for _, err := range child.List(ctx, q) {
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: still referenced by a %s through %s", store.ErrConflict, child.kind, field)
		}
		return nil
	}
}

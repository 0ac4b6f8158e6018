package service

import (
	"context"
	"fmt"
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
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	reg, err := NewRegistry(memory.NewEntityStore(), []store.Option{store.WithClock(clock)}, WithClock(clock))
	require.NoError(t, err)
	return reg
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

func createCustomer(t *testing.T, reg *Registry, name string) *domain.Customer {
	t.Helper()
	c, err := reg.Customers.Create(context.Background(), &domain.Customer{
		Name:  name,
		Email: name + "@example.com",
	})
	require.NoError(t, err)
	return c
}

func createBooking(t *testing.T, reg *Registry, customerID uuid.UUID) *domain.Booking {
	t.Helper()
	b, err := reg.Bookings.Create(context.Background(), &domain.Booking{
		CustomerID:  customerID,
		ServiceType: "oil change",
		ScheduledAt: fixedNow.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return b
}

func TestCreateNormalizesAndStamps(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	c, err := reg.Customers.Create(ctx, &domain.Customer{
		Base:  domain.Base{ID: uuid.New(), Version: 7},
		Name:  "  Ada Lovelace ",
		Email: " ADA@Example.COM",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, int64(1), c.Version)
	assert.Equal(t, "Ada Lovelace", c.Name)
	assert.Equal(t, "ada@example.com", c.Email)
	assert.Equal(t, fixedNow, c.CreatedAt)

	b := createBooking(t, reg, c.ID)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
}

func TestCreateRejectsInvalidEntity(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Customers.Create(context.Background(), &domain.Customer{Email: "not-an-email"})
	require.ErrorIs(t, err, domain.ErrValidation)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["email"])

	assert.Empty(t, collect(t, reg.Customers.List(context.Background(), store.Query{})))
}

func TestPaidPaymentRequiresPaidAt(t *testing.T) {
	reg := newTestRegistry(t)
	c := createCustomer(t, reg, "grace")
	b := createBooking(t, reg, c.ID)

	_, err := reg.Payments.Create(context.Background(), &domain.Payment{
		BookingID:   b.ID,
		AmountCents: 4200,
		Currency:    "usd",
		Method:      "CARD",
		Status:      domain.PaymentStatusPaid,
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "paid_at", verr.Fields[len(verr.Fields)-1].Field)

	paidAt := fixedNow
	p, err := reg.Payments.Create(context.Background(), &domain.Payment{
		BookingID:   b.ID,
		AmountCents: 4200,
		Currency:    "usd",
		Method:      "CARD",
		Status:      domain.PaymentStatusPaid,
		PaidAt:      &paidAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, "card", p.Method)
}

func TestReferencesMustExist(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Bookings.Create(ctx, &domain.Booking{
		CustomerID:  uuid.New(),
		ServiceType: "tune-up",
		ScheduledAt: fixedNow,
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorIs(t, err, domain.ErrReferenceNotFound)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	_, err = reg.Repairs.Create(ctx, &domain.Repair{BookingID: uuid.New(), Description: "brakes"})
	assert.ErrorIs(t, err, domain.ErrReferenceNotFound)

	c := createCustomer(t, reg, "linus")
	require.NoError(t, reg.Customers.Delete(ctx, c.ID))

	_, err = reg.Bookings.Create(ctx, &domain.Booking{
		CustomerID:  c.ID,
		ServiceType: "tune-up",
		ScheduledAt: fixedNow,
	})
	assert.ErrorIs(t, err, domain.ErrReferenceNotFound, "retired customers cannot be booked")
}

func TestSoftDeleteHidesEntity(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.True(t, reg.Customers.SoftDeletes())

	kept := createCustomer(t, reg, "kept")
	gone := createCustomer(t, reg, "gone")

	require.NoError(t, reg.Customers.Delete(ctx, gone.ID))

	_, err := reg.Customers.Get(ctx, gone.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = reg.Customers.Update(ctx, gone.ID, &domain.Customer{Name: "back", Email: "back@example.com"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, reg.Customers.Delete(ctx, gone.ID), store.ErrNotFound)

	listed := collect(t, reg.Customers.List(ctx, store.Query{}))
	require.Len(t, listed, 1)
	assert.Equal(t, kept.ID, listed[0].ID)
}

func TestHardDeleteRemovesEntity(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.False(t, reg.Bookings.SoftDeletes())

	c := createCustomer(t, reg, "hard")
	b := createBooking(t, reg, c.ID)

	require.NoError(t, reg.Bookings.Delete(ctx, b.ID))
	_, err := reg.Bookings.Get(ctx, b.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, reg.Bookings.Delete(ctx, b.ID), store.ErrNotFound)
}

func TestDeleteBlockedWhileReferenced(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	c := createCustomer(t, reg, "parent")
	b := createBooking(t, reg, c.ID)
	r, err := reg.Repairs.Create(ctx, &domain.Repair{BookingID: b.ID, Description: "brakes"})
	require.NoError(t, err)
	p, err := reg.Payments.Create(ctx, &domain.Payment{
		BookingID: b.ID, AmountCents: 4500, Currency: "usd", Method: "cash",
	})
	require.NoError(t, err)

	err = reg.Customers.Delete(ctx, c.ID)
	assert.ErrorIs(t, err, store.ErrConflict, "customer with a booking")
	_, err = reg.Customers.Get(ctx, c.ID)
	assert.NoError(t, err, "blocked delete must not retire the customer")

	assert.ErrorIs(t, reg.Bookings.Delete(ctx, b.ID), store.ErrConflict, "booking with a repair and a payment")

	require.NoError(t, reg.Repairs.Delete(ctx, r.ID))
	assert.ErrorIs(t, reg.Bookings.Delete(ctx, b.ID), store.ErrConflict, "booking with a payment")

	require.NoError(t, reg.Payments.Delete(ctx, p.ID))
	require.NoError(t, reg.Bookings.Delete(ctx, b.ID))
	require.NoError(t, reg.Customers.Delete(ctx, c.ID))
}

func TestDeleteIgnoresOtherParentsChildren(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	busy := createCustomer(t, reg, "busy")
	idle := createCustomer(t, reg, "idle")
	createBooking(t, reg, busy.ID)

	assert.NoError(t, reg.Customers.Delete(ctx, idle.ID))
	assert.ErrorIs(t, reg.Customers.Delete(ctx, busy.ID), store.ErrConflict)
}

func TestListLimitSkipsRetiredRows(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for _, name := range []string{"a", "b", "c", "d"} {
		ids = append(ids, createCustomer(t, reg, name).ID)
	}
	require.NoError(t, reg.Customers.Delete(ctx, ids[0]))
	require.NoError(t, reg.Customers.Delete(ctx, ids[1]))

	listed := collect(t, reg.Customers.List(ctx, store.Query{Limit: 2}))
	require.Len(t, listed, 2)
	assert.Equal(t, ids[2], listed[0].ID)
	assert.Equal(t, ids[3], listed[1].ID)
}

func TestListFilterAndRestart(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	c := createCustomer(t, reg, "filter")
	b1 := createBooking(t, reg, c.ID)
	createBooking(t, reg, c.ID)

	b1.Status = domain.BookingStatusConfirmed
	_, err := reg.Bookings.Update(ctx, b1.ID, b1)
	require.NoError(t, err)

	seq := reg.Bookings.List(ctx, store.Query{Filter: store.Filter{"status": "confirmed"}})
	first := collect(t, seq)
	second := collect(t, seq)
	require.Len(t, first, 1)
	assert.Equal(t, b1.ID, first[0].ID)
	assert.Equal(t, first, second)
}

func TestUpdateOptimisticConcurrency(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	c := createCustomer(t, reg, "occ")

	stale := *c
	c.Name = "first"
	updated, err := reg.Customers.Update(ctx, c.ID, c)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	stale.Name = "second"
	_, err = reg.Customers.Update(ctx, stale.ID, &stale)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := reg.Customers.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
}

func TestUsernameUniqueness(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	u, err := reg.Users.Create(ctx, &domain.User{Username: "Mechanic", Email: "m@example.com", Active: true})
	require.NoError(t, err)
	assert.Equal(t, "mechanic", u.Username)
	assert.Equal(t, domain.UserRoleStaff, u.Role)

	_, err = reg.Users.Create(ctx, &domain.User{Username: "mechanic", Email: "other@example.com"})
	assert.ErrorIs(t, err, store.ErrConflict)

	// Updating a user keeps its own username.
	u.DisplayName = "Head Mechanic"
	_, err = reg.Users.Update(ctx, u.ID, u)
	require.NoError(t, err)

	// Retired usernames stay reserved.
	require.NoError(t, reg.Users.Delete(ctx, u.ID))
	_, err = reg.Users.Create(ctx, &domain.User{Username: "mechanic", Email: "again@example.com"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestConcurrentUserCreatesKeepUsernamesUnique(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	const attempts = 16
	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Users.Create(ctx, &domain.User{
				Username: "dispatcher",
				Email:    fmt.Sprintf("d%d@example.com", i),
			})
			if err == nil {
				created.Add(1)
				return
			}
			assert.ErrorIs(t, err, store.ErrConflict)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Len(t, collect(t, reg.Users.List(ctx, store.Query{})), 1)
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.SeedAdmin(ctx, "admin", "admin@example.com")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = reg.SeedAdmin(ctx, "admin", "admin@example.com")
	require.NoError(t, err)
	assert.False(t, created)

	users := collect(t, reg.Users.List(ctx, store.Query{}))
	require.Len(t, users, 1)
	assert.Equal(t, domain.UserRoleAdmin, users[0].Role)
}

func TestValidateRegistrations(t *testing.T) {
	require.NoError(t, ValidateRegistrations(Registrations))
	assert.Len(t, Registrations, 5)

	tests := []struct {
		name string
		regs []Registration
	}{
		{"duplicate kind", []Registration{
			{Kind: domain.KindBooking, Resource: "a", Table: "a"},
			{Kind: domain.KindBooking, Resource: "b", Table: "b"},
		}},
		{"duplicate table", []Registration{
			{Kind: domain.KindBooking, Resource: "a", Table: "a"},
			{Kind: domain.KindUser, Resource: "b", Table: "a"},
		}},
		{"duplicate resource", []Registration{
			{Kind: domain.KindBooking, Resource: "a", Table: "a"},
			{Kind: domain.KindUser, Resource: "a", Table: "b"},
		}},
		{"incomplete", []Registration{{Kind: domain.KindBooking}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateRegistrations(tc.regs), ErrInvalidRegistration)
		})
	}

	reg, ok := Lookup(domain.KindPayment)
	require.True(t, ok)
	assert.Equal(t, "payments", reg.Resource)
	_, ok = Lookup(domain.Kind("invoice"))
	assert.False(t, ok)
}

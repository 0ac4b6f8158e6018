package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/bookings-api/internal/domain"
	"github.com/phrazzld/bookings-api/internal/platform/logger"
	"github.com/phrazzld/bookings-api/internal/store"
)

// Registration declares one entity kind: the table backing it, the URL
// resource serving it and the fields a list may be filtered on.
type Registration struct {
	Kind       domain.Kind
	Resource   string
	Table      string
	Filterable []string
}

// Registrations is the entity catalogue. Every kind appears exactly once and
// no two kinds share a table or a resource.
var Registrations = []Registration{
	{
		Kind:       domain.KindBooking,
		Resource:   "bookings",
		Table:      "bookings",
		Filterable: []string{"customer_id", "service_type", "status"},
	},
	{
		Kind:       domain.KindCustomer,
		Resource:   "customers",
		Table:      "customers",
		Filterable: []string{"email", "name"},
	},
	{
		Kind:       domain.KindPayment,
		Resource:   "payments",
		Table:      "payments",
		Filterable: []string{"booking_id", "currency", "method", "status"},
	},
	{
		Kind:       domain.KindRepair,
		Resource:   "repairs",
		Table:      "repairs",
		Filterable: []string{"booking_id", "status"},
	},
	{
		Kind:       domain.KindUser,
		Resource:   "users",
		Table:      "users",
		Filterable: []string{"email", "role", "username"},
	},
}

// Lookup returns the registration of kind.
func Lookup(kind domain.Kind) (Registration, bool) {
	for _, r := range Registrations {
		if r.Kind == kind {
			return r, true
		}
	}
	return Registration{}, false
}

// ValidateRegistrations checks that kinds, tables and resources are unique.
func ValidateRegistrations(regs []Registration) error {
	kinds := map[domain.Kind]bool{}
	tables := map[string]bool{}
	resources := map[string]bool{}
	for _, r := range regs {
		if r.Kind == "" || r.Table == "" || r.Resource == "" {
			return fmt.Errorf("%w: incomplete registration %+v", ErrInvalidRegistration, r)
		}
		if kinds[r.Kind] || tables[r.Table] || resources[r.Resource] {
			return fmt.Errorf("%w: %s reuses a kind, table or resource", ErrInvalidRegistration, r.Kind)
		}
		kinds[r.Kind], tables[r.Table], resources[r.Resource] = true, true, true
	}
	return nil
}

// Registry holds one Domain Service per entity kind. It is built once at
// startup and read-only afterwards.
type Registry struct {
	Bookings  *BookingService
	Customers *CustomerService
	Payments  *PaymentService
	Repairs   *RepairService
	Users     *UserService
}

// NewRegistry creates one repository and one service per registration, all
// backed by es.
func NewRegistry(es store.EntityStore, repoOpts []store.Option, opts ...Option) (*Registry, error) {
	if err := ValidateRegistrations(Registrations); err != nil {
		return nil, err
	}

	customers := NewCustomerService(
		store.NewRepository(es, binding(domain.KindCustomer, func() *domain.Customer { return &domain.Customer{} }), repoOpts...),
		opts...)
	bookings := NewBookingService(
		store.NewRepository(es, binding(domain.KindBooking, func() *domain.Booking { return &domain.Booking{} }), repoOpts...),
		customers, opts...)
	repairs := NewRepairService(
		store.NewRepository(es, binding(domain.KindRepair, func() *domain.Repair { return &domain.Repair{} }), repoOpts...),
		bookings, opts...)
	payments := NewPaymentService(
		store.NewRepository(es, binding(domain.KindPayment, func() *domain.Payment { return &domain.Payment{} }), repoOpts...),
		bookings, opts...)
	users := NewUserService(
		store.NewRepository(es, binding(domain.KindUser, func() *domain.User { return &domain.User{} }), repoOpts...),
		opts...)

	customers.protect(referencedBy(bookings.Service, "customer_id"))
	bookings.protect(
		referencedBy(repairs.Service, "booking_id"),
		referencedBy(payments.Service, "booking_id"),
	)

	return &Registry{
		Bookings:  bookings,
		Customers: customers,
		Payments:  payments,
		Repairs:   repairs,
		Users:     users,
	}, nil
}

func binding[E store.Entity[uuid.UUID]](kind domain.Kind, newEntity func() E) store.Binding[E, uuid.UUID] {
	reg, ok := Lookup(kind)
	if !ok {
		panic(fmt.Sprintf("no registration for kind %q", kind))
	}
	return store.Binding[E, uuid.UUID]{
		Kind:   string(kind),
		Table:  reg.Table,
		New:    newEntity,
		NewKey: uuid.New,
	}
}

// SeedAdmin creates the initial admin user when no live user exists yet.
// It reports whether a user was created.
func (r *Registry) SeedAdmin(ctx context.Context, username, email string) (bool, error) {
	exists, err := r.Users.Any(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check for existing users: %w", err)
	}
	if exists {
		return false, nil
	}

	admin, err := r.Users.Create(ctx, &domain.User{
		Username:    username,
		Email:       email,
		DisplayName: "Administrator",
		Role:        domain.UserRoleAdmin,
		Active:      true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to seed admin user: %w", err)
	}

	logger.FromContext(ctx).Info("seeded admin user",
		slog.String("user_id", admin.ID.String()),
		slog.String("username", admin.Username))
	return true, nil
}

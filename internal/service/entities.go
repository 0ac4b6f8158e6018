package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/bookings-api/internal/domain"
	"github.com/phrazzld/bookings-api/internal/store"
)

// CustomerService manages customers. Customers are soft-deleted.
type CustomerService struct {
	*Service[*domain.Customer]
}

// NewCustomerService creates a CustomerService.
func NewCustomerService(repo *store.Repository[*domain.Customer, uuid.UUID], opts ...Option) *CustomerService {
	return &CustomerService{Service: newService(repo, domain.KindCustomer, prepareCustomer, nil, opts)}
}

func prepareCustomer(c *domain.Customer) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
}

// BookingService manages bookings. Every booking must reference a live customer.
type BookingService struct {
	*Service[*domain.Booking]
	customers *CustomerService
}

// NewBookingService creates a BookingService.
func NewBookingService(
	repo *store.Repository[*domain.Booking, uuid.UUID],
	customers *CustomerService,
	opts ...Option,
) *BookingService {
	s := &BookingService{customers: customers}
	s.Service = newService(repo, domain.KindBooking, prepareBooking, s.checkReferences, opts)
	return s
}

func prepareBooking(b *domain.Booking) {
	b.ServiceType = strings.TrimSpace(b.ServiceType)
	if b.Status == "" {
		b.Status = domain.BookingStatusPending
	}
	if !b.ScheduledAt.IsZero() {
		b.ScheduledAt = b.ScheduledAt.UTC()
	}
}

func (s *BookingService) checkReferences(ctx context.Context, b *domain.Booking) error {
	return requireReference(ctx, s.customers.Service, "customer_id", b.CustomerID)
}

// RepairService manages repairs. Every repair must reference a live booking.
type RepairService struct {
	*Service[*domain.Repair]
	bookings *BookingService
}

// NewRepairService creates a RepairService.
func NewRepairService(
	repo *store.Repository[*domain.Repair, uuid.UUID],
	bookings *BookingService,
	opts ...Option,
) *RepairService {
	s := &RepairService{bookings: bookings}
	s.Service = newService(repo, domain.KindRepair, prepareRepair, s.checkReferences, opts)
	return s
}

func prepareRepair(r *domain.Repair) {
	r.Description = strings.TrimSpace(r.Description)
	if r.Status == "" {
		r.Status = domain.RepairStatusOpen
	}
}

func (s *RepairService) checkReferences(ctx context.Context, r *domain.Repair) error {
	return requireReference(ctx, s.bookings.Service, "booking_id", r.BookingID)
}

// PaymentService manages payments. Every payment must reference a live booking.
type PaymentService struct {
	*Service[*domain.Payment]
	bookings *BookingService
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(
	repo *store.Repository[*domain.Payment, uuid.UUID],
	bookings *BookingService,
	opts ...Option,
) *PaymentService {
	s := &PaymentService{bookings: bookings}
	s.Service = newService(repo, domain.KindPayment, preparePayment, s.checkReferences, opts)
	return s
}

func preparePayment(p *domain.Payment) {
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	p.Method = strings.ToLower(strings.TrimSpace(p.Method))
	if p.Status == "" {
		p.Status = domain.PaymentStatusPending
	}
	if p.PaidAt != nil {
		t := p.PaidAt.UTC()
		p.PaidAt = &t
	}
}

func (s *PaymentService) checkReferences(ctx context.Context, p *domain.Payment) error {
	return requireReference(ctx, s.bookings.Service, "booking_id", p.BookingID)
}

// UserService manages staff users. Users are soft-deleted and usernames are
// unique across live and retired users.
type UserService struct {
	*Service[*domain.User]
}

// NewUserService creates a UserService.
func NewUserService(repo *store.Repository[*domain.User, uuid.UUID], opts ...Option) *UserService {
	s := &UserService{}
	s.Service = newService(repo, domain.KindUser, prepareUser, s.checkUnique, opts)
	s.serial = true
	return s
}

func prepareUser(u *domain.User) {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	if u.Role == "" {
		u.Role = domain.UserRoleStaff
	}
}

// checkUnique rejects a username held by another user. User writes are
// serialized within the process; across processes the postgres schema
// enforces the same rule with a unique index.
func (s *UserService) checkUnique(ctx context.Context, u *domain.User) error {
	q := store.Query{Filter: store.Filter{"username": u.Username}, Limit: 2}
	for other, err := range s.repo.List(ctx, q) {
		if err != nil {
			return err
		}
		if other.ID != u.ID {
			return fmt.Errorf("%w: username %q is already taken", store.ErrConflict, u.Username)
		}
	}
	return nil
}

// Any reports whether at least one live user exists.
func (s *UserService) Any(ctx context.Context) (bool, error) {
	for _, err := range s.List(ctx, store.Query{Limit: 1}) {
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

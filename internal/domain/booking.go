package domain

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus tracks a booking through its lifecycle.
type BookingStatus string

// Possible booking status values
const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is a customer's reservation of a service at a point in time.
type Booking struct {
	Base
	CustomerID  uuid.UUID     `json:"customer_id" validate:"required"`
	ServiceType string        `json:"service_type" validate:"required,max=100"`
	ScheduledAt time.Time     `json:"scheduled_at" validate:"required"`
	Status      BookingStatus `json:"status" validate:"required,oneof=pending confirmed completed cancelled"`
	Notes       string        `json:"notes,omitempty" validate:"max=2000"`
}

// Validate checks the booking's field rules.
func (b *Booking) Validate() error {
	return Check(b)
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus tracks whether money has moved.
type PaymentStatus string

// Possible payment status values
const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment records money received against a booking.
type Payment struct {
	Base
	BookingID   uuid.UUID     `json:"booking_id" validate:"required"`
	AmountCents int64         `json:"amount_cents" validate:"gt=0"`
	Currency    string        `json:"currency" validate:"required,len=3,uppercase"`
	Method      string        `json:"method" validate:"required,oneof=cash card transfer"`
	Status      PaymentStatus `json:"status" validate:"required,oneof=pending paid refunded"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
}

// Validate checks the payment's field rules. A paid payment must carry PaidAt.
func (p *Payment) Validate() error {
	err := Check(p)
	if p.Status == PaymentStatusPaid && p.PaidAt == nil {
		var verr *ValidationError
		if err == nil {
			verr = &ValidationError{}
		} else if !asValidationError(err, &verr) {
			return err
		}
		return verr.Add("paid_at", "is required when status is paid")
	}
	return err
}

package domain

import "github.com/google/uuid"

// RepairStatus tracks the progress of repair work.
type RepairStatus string

// Possible repair status values
const (
	RepairStatusOpen       RepairStatus = "open"
	RepairStatusInProgress RepairStatus = "in_progress"
	RepairStatusDone       RepairStatus = "done"
)

// Repair is a unit of work performed as part of a booking.
type Repair struct {
	Base
	BookingID   uuid.UUID    `json:"booking_id" validate:"required"`
	Description string       `json:"description" validate:"required,max=2000"`
	Status      RepairStatus `json:"status" validate:"required,oneof=open in_progress done"`
	CostCents   int64        `json:"cost_cents" validate:"gte=0"`
}

// Validate checks the repair's field rules.
func (r *Repair) Validate() error {
	return Check(r)
}

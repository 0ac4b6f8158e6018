package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind names an entity type. Each kind owns exactly one table and one repository.
type Kind string

// Entity kinds served by the API.
const (
	KindBooking  Kind = "booking"
	KindCustomer Kind = "customer"
	KindPayment  Kind = "payment"
	KindRepair   Kind = "repair"
	KindUser     Kind = "user"
)

// Base holds the identity and lifecycle fields shared by every entity.
// Version is the optimistic-concurrency token; it starts at 1 on insert
// and is incremented by every successful replace.
type Base struct {
	ID        uuid.UUID `json:"id"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the identity key.
func (b *Base) Key() uuid.UUID { return b.ID }

// SetKey assigns the identity key.
func (b *Base) SetKey(id uuid.UUID) { b.ID = id }

// ConcurrencyToken returns the version the caller last observed.
func (b *Base) ConcurrencyToken() int64 { return b.Version }

// SetConcurrencyToken records the stored version.
func (b *Base) SetConcurrencyToken(v int64) { b.Version = v }

// SetTimestamps records the stored lifecycle timestamps.
func (b *Base) SetTimestamps(created, updated time.Time) {
	b.CreatedAt = created
	b.UpdatedAt = updated
}

// SoftDelete marks entities that are retired instead of removed.
type SoftDelete struct {
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the entity has been retired.
func (s *SoftDelete) Deleted() bool { return s.DeletedAt != nil }

// MarkDeleted retires the entity at the given time.
func (s *SoftDelete) MarkDeleted(at time.Time) {
	t := at.UTC()
	s.DeletedAt = &t
}

// Restore clears the deletion mark.
func (s *SoftDelete) Restore() { s.DeletedAt = nil }

package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/bookings-api/internal/domain"
	"github.com/phrazzld/bookings-api/internal/store"
)

// ErrInvalidRegistration indicates the entity catalogue reuses a kind, table or resource.
var ErrInvalidRegistration = errors.New("invalid entity registration")

// notFound reports a missing or retired entity the same way the repository does.
func notFound(kind domain.Kind, op string, id uuid.UUID) error {
	return store.NewStoreError(string(kind), op, "entity does not exist",
		fmt.Errorf("%w: %s", store.ErrNotFound, id))
}

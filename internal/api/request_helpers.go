package api

import (
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/bookings-api/internal/domain"
	"github.com/phrazzld/bookings-api/internal/store"
)

// Query parameters with a fixed meaning on list endpoints.
const (
	limitParam = "limit"

	// maxListLimit caps ?limit= on paged lists.
	maxListLimit = 500

	// idFieldSuffix marks filterable fields holding entity references.
	idFieldSuffix = "_id"
)

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}
	return id, nil
}

// parseListQuery turns query parameters into a store query. Only filterable
// fields narrow the result; a repeated field is rejected. When paged is
// false ?limit= is ignored.
func parseListQuery(values url.Values, filterable []string, paged bool) (store.Query, error) {
	var q store.Query
	var verr *domain.ValidationError
	invalid := func(field, message string) {
		if verr == nil {
			verr = domain.NewValidationError(field, message, domain.ErrInvalidFormat)
			return
		}
		verr.Add(field, message)
	}

	for name, vals := range values {
		switch {
		case name == limitParam:
			if !paged {
				continue
			}
			n, err := strconv.Atoi(vals[0])
			if err != nil || n < 1 || n > maxListLimit || len(vals) > 1 {
				invalid(limitParam, "must be a single integer between 1 and "+strconv.Itoa(maxListLimit))
				continue
			}
			q.Limit = n
		case slices.Contains(filterable, name):
			if len(vals) > 1 {
				invalid(name, "may be given only once")
				continue
			}
			value := vals[0]
			if strings.HasSuffix(name, idFieldSuffix) {
				id, err := uuid.Parse(value)
				if err != nil {
					invalid(name, "must be a valid UUID")
					continue
				}
				// Stored references are in canonical lowercase form.
				value = id.String()
			}
			if q.Filter == nil {
				q.Filter = store.Filter{}
			}
			q.Filter[name] = value
		}
	}

	if verr != nil {
		return store.Query{}, verr
	}
	return q, nil
}

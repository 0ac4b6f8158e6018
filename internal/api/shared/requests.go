package shared

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/phrazzld/bookings-api/internal/domain"
)

// MaxBodyBytes caps the size of a JSON request body.
const MaxBodyBytes = 1 << 20

// DecodeJSON decodes the request body into v. Malformed, oversized or empty
// bodies yield a *domain.ValidationError on the "body" field.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return domain.NewValidationError("body", "is required", domain.ErrInvalidFormat)
		case errors.As(err, &tooLarge):
			return domain.NewValidationError("body", "is too large", domain.ErrInvalidFormat)
		default:
			return domain.NewValidationError("body", "is not valid JSON", domain.ErrInvalidFormat)
		}
	}
	if dec.More() {
		return domain.NewValidationError("body", "must contain a single JSON object", domain.ErrInvalidFormat)
	}
	return nil
}

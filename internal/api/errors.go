package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/bookings-api/internal/api/shared"
	"github.com/phrazzld/bookings-api/internal/api/versioning"
	"github.com/phrazzld/bookings-api/internal/domain"
	"github.com/phrazzld/bookings-api/internal/service/auth"
	"github.com/phrazzld/bookings-api/internal/store"
)

var (
	// ErrRouteNotFound is returned when no handler is registered for the
	// requested resource and API version. It is unrelated to store.ErrNotFound,
	// which concerns a missing entity.
	ErrRouteNotFound = errors.New("route not found")

	// ErrMethodNotAllowed is returned when the route exists but does not
	// accept the request method.
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// Stable error codes carried in every error response.
const (
	CodeUnauthorized       = "unauthorized"
	CodeUnsupportedVersion = "unsupported_api_version"
	CodeRouteNotFound      = "route_not_found"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeValidationFailed   = "validation_failed"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeTimeout            = "timeout"
	CodeUnavailable        = "unavailable"
	CodeInternal           = "internal_error"
)

type errorClass struct {
	status  int
	code    string
	message string
}

// classify maps err onto its external class. Authentication is checked first
// so that no later class can mask a rejected credential.
func classify(err error) errorClass {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return errorClass{http.StatusUnauthorized, CodeUnauthorized, "Authentication is required"}
	case errors.Is(err, versioning.ErrUnsupportedVersion):
		return errorClass{http.StatusBadRequest, CodeUnsupportedVersion, "The requested API version is not supported"}
	case errors.Is(err, ErrRouteNotFound):
		return errorClass{http.StatusNotFound, CodeRouteNotFound, "No route matches the requested resource and API version"}
	case errors.Is(err, ErrMethodNotAllowed):
		return errorClass{http.StatusMethodNotAllowed, CodeMethodNotAllowed, "The method is not allowed for this resource"}
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return errorClass{http.StatusUnprocessableEntity, CodeValidationFailed, "The request is invalid"}
	case errors.Is(err, store.ErrNotFound):
		return errorClass{http.StatusNotFound, CodeNotFound, "The requested entity does not exist"}
	case errors.Is(err, store.ErrConflict):
		return errorClass{http.StatusConflict, CodeConflict, "The entity was changed or already exists"}
	case errors.Is(err, store.ErrTimeout),
		errors.Is(err, auth.ErrIssuerTimeout):
		return errorClass{http.StatusGatewayTimeout, CodeTimeout, "A dependency did not respond in time"}
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, auth.ErrIssuerUnavailable):
		return errorClass{http.StatusServiceUnavailable, CodeUnavailable, "A dependency is unavailable"}
	default:
		return errorClass{http.StatusInternalServerError, CodeInternal, "An unexpected error occurred"}
	}
}

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	return classify(err).status
}

// ErrorCode returns the stable machine-readable code for err.
func ErrorCode(err error) string {
	return classify(err).code
}

// GetSafeErrorMessage returns a client-facing message for err. It never
// includes err's own text.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}
	return classify(err).message
}

// HandleAPIError writes the error envelope for err. Field details of a
// validation error are passed through; everything else is reduced to its
// class. Rejected credentials are logged at WARN.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	class := classify(err)
	body := shared.ErrorResponse{
		Error:  class.message,
		Code:   class.code,
		Status: class.status,
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}

	var opts []shared.ResponseOption
	if class.status == http.StatusUnauthorized {
		challenge := "Bearer"
		if !errors.Is(err, auth.ErrMissingToken) {
			challenge = `Bearer error="invalid_token"`
		}
		w.Header().Set("WWW-Authenticate", challenge)
		opts = append(opts, shared.WithElevatedLogLevel())
	}

	shared.RespondWithErrorAndLog(w, r, body, err, opts...)
}

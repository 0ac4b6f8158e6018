package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/bookings-api/internal/platform/logger"
	"github.com/phrazzld/bookings-api/internal/service/auth"
)

// ErrorWriter renders err as the response to r.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// AuthMiddleware rejects every request that does not carry a bearer token
// the Authenticator accepts. It must run before any domain handler.
type AuthMiddleware struct {
	authenticator auth.Authenticator
	onError       ErrorWriter
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(authenticator auth.Authenticator, onError ErrorWriter) *AuthMiddleware {
	if authenticator == nil {
		panic("authenticator cannot be nil")
	}
	return &AuthMiddleware{authenticator: authenticator, onError: onError}
}

// Authenticate validates the Authorization header and adds the caller's
// identity to the request context. Rejected requests never reach next.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			m.onError(w, r, err)
			return
		}

		identity, err := m.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			m.onError(w, r, err)
			return
		}

		ctx := auth.WithIdentity(r.Context(), identity)
		log := logger.FromContextOrDefault(ctx, slog.Default()).With(slog.String("subject", identity.Subject))
		ctx = logger.WithLogger(ctx, log)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", auth.ErrMissingToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.ContainsAny(token, " \t") {
		return "", auth.ErrInvalidToken
	}
	return token, nil
}

package auth

import (
	"context"
	"strings"
	"time"
)

// Identity describes the caller a bearer token was issued for.
type Identity struct {
	Subject   string
	ClientID  string
	Issuer    string
	Scopes    []string
	ExpiresAt time.Time
	// Claims holds the raw token claims or introspection response.
	Claims map[string]any
}

// HasScope reports whether the identity was granted scope.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Authenticator validates bearer tokens.
type Authenticator interface {
	// Authenticate returns the identity behind token. Rejected tokens fail with
	// an error matching ErrUnauthorized; issuer problems fail with
	// ErrIssuerTimeout or ErrIssuerUnavailable.
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by the auth middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

func identityFromClaims(claims map[string]any) *Identity {
	id := &Identity{
		Subject:  stringClaim(claims, "sub"),
		ClientID: stringClaim(claims, "client_id"),
		Issuer:   stringClaim(claims, "iss"),
		Scopes:   scopesClaim(claims["scope"]),
		Claims:   claims,
	}
	if exp, ok := claims["exp"].(float64); ok {
		id.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return id
}

func stringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return s
}

// scopesClaim accepts both the space-delimited string and the array form.
func scopesClaim(v any) []string {
	switch s := v.(type) {
	case string:
		return strings.Fields(s)
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return s
	}
	return nil
}

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
	"github.com/phrazzld/bookings-api/internal/config"
	"github.com/phrazzld/bookings-api/internal/platform/logger"
)

// introspectionCacheTTL bounds how long an active reference token is trusted
// without asking the issuer again.
const introspectionCacheTTL = time.Minute

var rsaMethods = []string{
	jwt.SigningMethodRS256.Name,
	jwt.SigningMethodRS384.Name,
	jwt.SigningMethodRS512.Name,
}

// OIDCAuthenticator validates bearer tokens issued by an OpenID Connect
// authority. JWTs are verified locally with the issuer's published keys, or
// with the API secret when HMAC-signed. Reference tokens are introspected.
type OIDCAuthenticator struct {
	issuer       *issuerClient
	issuerName   string
	audience     string
	secret       []byte
	clockSkew    time.Duration
	timeFunc     func() time.Time
	logger       *slog.Logger
	introspected *cache.Cache
}

// Ensure OIDCAuthenticator implements Authenticator interface
var _ Authenticator = (*OIDCAuthenticator)(nil)

// Option configures an OIDCAuthenticator.
type Option func(*authOptions)

type authOptions struct {
	httpClient *http.Client
	timeFunc   func() time.Time
	logger     *slog.Logger
}

// WithHTTPClient overrides the client used for issuer calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *authOptions) { o.httpClient = c }
}

// WithClock overrides the time source used for token validation.
func WithClock(now func() time.Time) Option {
	return func(o *authOptions) { o.timeFunc = now }
}

// WithLogger sets the fallback logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *authOptions) { o.logger = l }
}

// NewOIDCAuthenticator creates an authenticator for the issuer in cfg.
func NewOIDCAuthenticator(cfg config.AuthConfig, opts ...Option) (*OIDCAuthenticator, error) {
	u, err := url.Parse(cfg.Authority)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid authority %q", cfg.Authority)
	}
	if cfg.RequireHTTPSMetadata && u.Scheme != "https" {
		return nil, fmt.Errorf("authority %q must use https when require_https_metadata is set", cfg.Authority)
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience cannot be empty")
	}

	o := authOptions{
		httpClient: http.DefaultClient,
		timeFunc:   time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &OIDCAuthenticator{
		issuer:       newIssuerClient(cfg.Authority, cfg.RequireHTTPSMetadata, cfg.IssuerTimeout, cfg.MetadataCacheTTL, o.httpClient),
		issuerName:   strings.TrimRight(cfg.Authority, "/"),
		audience:     cfg.Audience,
		secret:       []byte(cfg.APISecret),
		clockSkew:    cfg.ClockSkew,
		timeFunc:     o.timeFunc,
		logger:       o.logger.With(slog.String("component", "authenticator")),
		introspected: cache.New(introspectionCacheTTL, 2*introspectionCacheTTL),
	}, nil
}

// Authenticate implements Authenticator.
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	if strings.Count(token, ".") == 2 {
		return a.verifyJWT(ctx, token)
	}
	return a.introspect(ctx, token)
}

func (a *OIDCAuthenticator) verifyJWT(ctx context.Context, token string) (*Identity, error) {
	log := logger.FromContextOrDefault(ctx, a.logger)

	methods := rsaMethods
	if len(a.secret) > 0 {
		methods = append([]string{jwt.SigningMethodHS256.Name}, rsaMethods...)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(methods),
		jwt.WithAudience(a.audience),
		jwt.WithIssuer(a.issuerName),
		jwt.WithLeeway(a.clockSkew),
		jwt.WithTimeFunc(a.timeFunc),
		jwt.WithExpirationRequired(),
	)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return a.secret, nil
		case *jwt.SigningMethodRSA:
			kid, _ := t.Header["kid"].(string)
			return a.issuer.signingKey(ctx, kid)
		}
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrIssuerTimeout), errors.Is(err, ErrIssuerUnavailable):
			log.Warn("token issuer call failed", slog.String("error", err.Error()))
			return nil, err
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: token expired")
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("token validation failed: token not yet valid")
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token validation failed",
				slog.String("error", err.Error()),
				slog.String("error_type", fmt.Sprintf("%T", err)))
			return nil, ErrInvalidToken
		}
	}

	return identityFromClaims(claims), nil
}

// introspect validates a reference token through the issuer. Only available
// when an API secret is configured.
func (a *OIDCAuthenticator) introspect(ctx context.Context, token string) (*Identity, error) {
	if len(a.secret) == 0 {
		return nil, ErrInvalidToken
	}

	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])
	if v, ok := a.introspected.Get(key); ok {
		id := v.(*Identity)
		if id.ExpiresAt.IsZero() || a.timeFunc().Before(id.ExpiresAt.Add(a.clockSkew)) {
			return id, nil
		}
		a.introspected.Delete(key)
	}

	log := logger.FromContextOrDefault(ctx, a.logger)

	doc, err := a.issuer.discovery(ctx)
	if err != nil {
		log.Warn("token issuer call failed", slog.String("error", err.Error()))
		return nil, err
	}
	if doc.IntrospectionEndpoint == "" {
		return nil, fmt.Errorf("%w: issuer does not publish an introspection endpoint", ErrIssuerUnavailable)
	}

	resp, err := a.issuer.introspect(ctx, doc.IntrospectionEndpoint, token, a.audience, string(a.secret))
	if err != nil {
		log.Warn("token introspection failed", slog.String("error", err.Error()))
		return nil, err
	}
	if active, _ := resp["active"].(bool); !active {
		log.Debug("token validation failed: reference token inactive")
		return nil, ErrInvalidToken
	}

	id := identityFromClaims(resp)
	ttl := introspectionCacheTTL
	if !id.ExpiresAt.IsZero() {
		remaining := id.ExpiresAt.Add(a.clockSkew).Sub(a.timeFunc())
		if remaining <= 0 {
			return nil, ErrExpiredToken
		}
		ttl = min(ttl, remaining)
	}
	a.introspected.Set(key, id, ttl)
	return id, nil
}

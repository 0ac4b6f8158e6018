package versioning

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/phrazzld/bookings-api/internal/platform/logger"
)

// Response headers reporting the version set.
const (
	SupportedVersionsHeader  = "api-supported-versions"
	DeprecatedVersionsHeader = "api-deprecated-versions"
)

type contextKey struct{}

// WithResolution stores res in ctx.
func WithResolution(ctx context.Context, res Resolution) context.Context {
	return context.WithValue(ctx, contextKey{}, res)
}

// FromContext returns the resolution stored by the middleware.
func FromContext(ctx context.Context) (Resolution, bool) {
	res, ok := ctx.Value(contextKey{}).(Resolution)
	return res, ok
}

// ErrorWriter renders a resolution failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Observer is notified about every successful resolution.
type Observer interface {
	ObserveVersion(version, source string, discrepancy bool)
}

// Middleware resolves the request version once, reports the supported set in
// the response headers and stores the resolution in the request context.
// Unsupported versions are rendered by onError and never reach next.
func Middleware(resolver *Resolver, onError ErrorWriter, obs Observer) func(http.Handler) http.Handler {
	set := resolver.Set()
	supported := set.SupportedHeader()
	deprecated := set.DeprecatedHeader()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if supported != "" {
				w.Header().Set(SupportedVersionsHeader, supported)
			}
			if deprecated != "" {
				w.Header().Set(DeprecatedVersionsHeader, deprecated)
			}

			log := logger.FromContext(r.Context())
			res, err := resolver.Resolve(r)
			if err != nil {
				log.Debug("rejected api version",
					slog.String("source", string(res.Source)),
					slog.String("error", err.Error()))
				onError(w, r, err)
				return
			}

			if res.Discrepancy {
				attrs := []any{
					slog.String("resolved", res.Descriptor.String()),
					slog.String("source", string(res.Source)),
				}
				for _, s := range res.Signals[1:] {
					attrs = append(attrs, slog.String(string(s.Source), s.Raw))
				}
				log.Warn("conflicting api version signals, lower precedence ignored", attrs...)
			}
			if obs != nil {
				obs.ObserveVersion(res.Descriptor.String(), string(res.Source), res.Discrepancy)
			}

			ctx := logger.WithLogger(WithResolution(r.Context(), res),
				log.With(slog.String("api_version", res.Descriptor.String())))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

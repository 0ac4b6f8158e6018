package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/bookings-api/internal/api/shared"
	"github.com/phrazzld/bookings-api/internal/platform/logger"
)

// TraceMiddleware assigns each request a trace ID and a logger carrying it.
// A well-formed X-Trace-ID from the caller is reused. It should run early in
// the chain so every later handler and error response sees the trace ID.
func TraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID, ok := shared.IncomingTraceID(r.Header.Get(shared.TraceIDHeader))
			if !ok {
				traceID = shared.NewTraceID()
			}
			w.Header().Set(shared.TraceIDHeader, traceID)

			log := base.With(slog.String("trace_id", traceID))
			ctx := shared.WithTraceID(r.Context(), traceID)
			ctx = logger.WithLogger(ctx, log)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

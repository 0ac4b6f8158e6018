package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/phrazzld/bookings-api/internal/api/middleware"
	"github.com/phrazzld/bookings-api/internal/api/shared"
	"github.com/phrazzld/bookings-api/internal/api/versioning"
	"github.com/phrazzld/bookings-api/internal/platform/metrics"
	"github.com/phrazzld/bookings-api/internal/service"
	"github.com/phrazzld/bookings-api/internal/service/auth"
)

// Static mount points, served without authentication.
const (
	UploadsPath = "/Uploads"
	FilesPath   = "/Files"
)

// healthCheckTimeout bounds the readiness probe behind GET /health.
const healthCheckTimeout = 2 * time.Second

// RouterConfig holds the dependencies of the HTTP router.
type RouterConfig struct {
	Logger        *slog.Logger
	Registry      *service.Registry
	Versions      *versioning.Set
	Authenticator auth.Authenticator
	// Metrics is optional; when set, requests are counted and /metrics is served.
	Metrics *metrics.Metrics
	// HealthCheck is optional; a failing check turns GET /health into a 503.
	HealthCheck func(context.Context) error
	CORSOrigins []string
	UploadsDir  string
	FilesDir    string
}

// NewRouter builds the HTTP handler. Requests to entity resources pass CORS,
// then the Auth Gate, then version resolution, then the dispatcher; nothing
// reaches a Domain Service without an authenticated identity.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Registry == nil || cfg.Versions == nil || cfg.Authenticator == nil {
		return nil, fmt.Errorf("router requires a registry, a version set and an authenticator")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dispatcher := NewDispatcher(cfg.Versions)
	resources, err := MountRegistry(dispatcher, cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}
	docs, err := NewDocs(cfg.Versions, resources)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(corsOptions(cfg.CORSOrigins)))
	r.Use(middleware.TraceMiddleware(cfg.Logger))

	var observer versioning.Observer
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Handle("/metrics", cfg.Metrics.Handler())
		observer = cfg.Metrics
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		HandleAPIError(w, r, ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		HandleAPIError(w, r, ErrMethodNotAllowed)
	})

	r.Get("/health", healthHandler(cfg.HealthCheck))
	r.Mount("/swagger", docs.Routes())
	mountStatic(r, UploadsPath, cfg.UploadsDir)
	mountStatic(r, FilesPath, cfg.FilesDir)

	gate := middleware.NewAuthMiddleware(cfg.Authenticator, HandleAPIError)
	resolver := versioning.NewResolver(cfg.Versions)
	r.With(
		gate.Authenticate,
		versioning.Middleware(resolver, HandleAPIError, observer),
	).Handle("/*", dispatcher)

	cfg.Logger.Info("routes registered",
		slog.Int("routes", len(dispatcher.Routes())),
		slog.Any("api_versions", cfg.Versions.GroupNames()))
	return r, nil
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", versioning.HeaderName, shared.TraceIDHeader},
		ExposedHeaders: []string{
			versioning.SupportedVersionsHeader,
			versioning.DeprecatedVersionsHeader,
			shared.TraceIDHeader,
			"Location",
		},
		MaxAge: 300,
	}
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				shared.RespondWithErrorAndLog(w, r, shared.ErrorResponse{
					Error:  "The service is not ready",
					Code:   CodeUnavailable,
					Status: http.StatusServiceUnavailable,
				}, err)
				return
			}
		}
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// mountStatic serves dir read-only under prefix.
func mountStatic(r chi.Router, prefix, dir string) {
	if dir == "" {
		return
	}
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	r.Get(prefix+"/*", fs.ServeHTTP)
	r.Head(prefix+"/*", fs.ServeHTTP)
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/phrazzld/bookings-api/internal/api"
	"github.com/phrazzld/bookings-api/internal/api/versioning"
	"github.com/phrazzld/bookings-api/internal/config"
	"github.com/phrazzld/bookings-api/internal/platform/logger"
	"github.com/phrazzld/bookings-api/internal/platform/memory"
	"github.com/phrazzld/bookings-api/internal/platform/metrics"
	"github.com/phrazzld/bookings-api/internal/platform/postgres"
	"github.com/phrazzld/bookings-api/internal/platform/tracing"
	"github.com/phrazzld/bookings-api/internal/service"
	"github.com/phrazzld/bookings-api/internal/service/auth"
	"github.com/phrazzld/bookings-api/internal/store"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Store backends selectable through database.driver.
const (
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

const tracerShutdownTimeout = 5 * time.Second

// application holds the shared dependencies of one server process and
// releases them on cleanup.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil when the memory driver is configured.
	db    *sql.DB
	store store.EntityStore

	metrics       *metrics.Metrics
	traces        *sdktrace.TracerProvider
	versions      *versioning.Set
	registry      *service.Registry
	authenticator auth.Authenticator
}

// newApplication wires the store, the domain services, the version set and
// the authenticator described by cfg.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: log,
	}

	var err error
	app.metrics, err = metrics.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	app.traces, err = tracing.Setup(cfg.Tracing, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := app.openStore(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	app.versions, err = versioning.NewSet(cfg.API.SupportedVersions, cfg.API.DeprecatedVersions, cfg.API.DefaultVersion)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("invalid api version configuration: %w", err)
	}

	app.registry, err = service.NewRegistry(app.store,
		[]store.Option{
			store.WithTimeout(cfg.Database.OperationTimeout),
			store.WithLogger(log),
			store.WithObserver(app.metrics),
			store.WithTracer(tracing.Tracer(app.traces)),
		},
		service.WithLogger(log),
	)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create domain services: %w", err)
	}

	app.authenticator, err = auth.NewOIDCAuthenticator(cfg.Auth, auth.WithLogger(log))
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize authenticator: %w", err)
	}
	log.Info("token validation configured",
		slog.String("authority", cfg.Auth.Authority),
		slog.String("audience", cfg.Auth.Audience),
		slog.Bool("require_https_metadata", cfg.Auth.RequireHTTPSMetadata))

	log.Info("application initialized", slog.String("api_versions", app.versions.SupportedHeader()))
	return app, nil
}

func (app *application) openStore(ctx context.Context) error {
	switch app.config.Database.Driver {
	case driverMemory:
		app.logger.Warn("using in-memory entity store; data is lost on exit")
		app.store = memory.NewEntityStore()
		return nil
	case driverPostgres:
		db, err := postgres.Open(ctx, app.config.Database, app.logger)
		if err != nil {
			return err
		}
		if err := app.metrics.RegisterDBStats(db); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to register database metrics: %w", err)
		}
		app.db = db
		app.store = postgres.NewEntityStore(db, app.logger)
		return nil
	default:
		return fmt.Errorf("unknown database driver %q", app.config.Database.Driver)
	}
}

// Run prepares the process, binds the configured port and serves until ctx
// is cancelled.
func (app *application) Run(ctx context.Context) error {
	if err := app.prepare(ctx); err != nil {
		return err
	}

	handler, err := app.router()
	if err != nil {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", app.config.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", app.config.Server.Port, err)
	}
	return app.serve(ctx, ln, handler)
}

// prepare runs the startup steps: static directories, migrations and the
// admin seed.
func (app *application) prepare(ctx context.Context) error {
	if err := ensureDirectories(app.config.Files.UploadsDir, app.config.Files.FilesDir); err != nil {
		return err
	}

	if app.db != nil && app.config.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, app.db, postgres.MigrateUp, app.logger); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	if app.config.Seed.OnStart {
		return app.seed(ctx)
	}
	return nil
}

// seed creates the configured admin user unless a user already exists.
func (app *application) seed(ctx context.Context) error {
	ctx = logger.WithLogger(ctx, app.logger.With(slog.String("component", "seed")))
	created, err := app.registry.SeedAdmin(ctx, app.config.Seed.AdminUsername, app.config.Seed.AdminEmail)
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	if !created {
		app.logger.Info("seed skipped; users already exist")
	}
	return nil
}

func (app *application) router() (http.Handler, error) {
	return api.NewRouter(api.RouterConfig{
		Logger:        app.logger,
		Registry:      app.registry,
		Versions:      app.versions,
		Authenticator: app.authenticator,
		Metrics:       app.metrics,
		HealthCheck:   app.healthCheck,
		CORSOrigins:   app.config.Server.CORSOrigins,
		UploadsDir:    app.config.Files.UploadsDir,
		FilesDir:      app.config.Files.FilesDir,
	})
}

// healthCheck reports whether the backing store is reachable.
func (app *application) healthCheck(ctx context.Context) error {
	if app.db == nil {
		return nil
	}
	return app.db.PingContext(ctx)
}

// ensureDirectories creates the static file roots if they are missing.
func ensureDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
		app.db = nil
	}
	if app.traces != nil {
		if err := tracing.Shutdown(app.traces, tracerShutdownTimeout); err != nil {
			app.logger.Error("error flushing traces", slog.String("error", err.Error()))
		}
		app.traces = nil
	}
}

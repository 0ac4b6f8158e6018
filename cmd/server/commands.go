package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/bookings-api/internal/config"
	"github.com/phrazzld/bookings-api/internal/platform/logger"
	"github.com/phrazzld/bookings-api/internal/platform/postgres"
	"github.com/spf13/cobra"
)

// ErrMigrationsNeedPostgres is returned by the migrate command when the
// configured store has no schema to migrate.
var ErrMigrationsNeedPostgres = errors.New("migrations require the postgres driver")

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "bookings-api",
		Short:         "Service-booking backend with versioned HTTP endpoints",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return nil
			}
			return os.Setenv(config.ConfigFileEnv, configFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "",
		"path to a configuration file (overrides "+config.ConfigFileEnv+")")

	root.AddCommand(newServeCommand(), newMigrateCommand(), newSeedCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|reset|status|version]",
		Short: "Apply or inspect database migrations",
		ValidArgs: []string{
			postgres.MigrateUp,
			postgres.MigrateDown,
			postgres.MigrateReset,
			postgres.MigrateStatus,
			postgres.MigrateVersion,
		},
		Args: cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := postgres.MigrateUp
			if len(args) == 1 {
				command = args[0]
			}

			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != driverPostgres {
				return fmt.Errorf("%w: configured driver is %q", ErrMigrationsNeedPostgres, cfg.Database.Driver)
			}

			db, err := postgres.Open(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := db.Close(); closeErr != nil {
					log.Error("failed to close database connection", slog.String("error", closeErr.Error()))
				}
			}()

			return postgres.Migrate(cmd.Context(), db, command, log)
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the initial admin user when no user exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.Seed.AdminUsername == "" || cfg.Seed.AdminEmail == "" {
				return errors.New("seed requires seed.admin_username and seed.admin_email")
			}

			app, err := newApplication(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.cleanup()

			if app.db != nil && cfg.Database.MigrateOnStart {
				if err := postgres.Migrate(cmd.Context(), app.db, postgres.MigrateUp, log); err != nil {
					return err
				}
			}
			return app.seed(cmd.Context())
		},
	}
}

// runServe loads configuration, builds the application and serves until the
// command context is cancelled.
func runServe(cmd *cobra.Command) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	app, err := newApplication(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer app.cleanup()

	return app.Run(cmd.Context())
}

// bootstrap loads configuration and installs the process logger.
func bootstrap() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("default_api_version", cfg.API.DefaultVersion),
		slog.Any("supported_api_versions", cfg.API.SupportedVersions))
	if cfg.Database.URL != "" {
		log.Debug("database configuration", slog.String("url", postgres.MaskDatabaseURL(cfg.Database.URL)))
	}
	return cfg, log, nil
}

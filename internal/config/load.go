package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable read by Load, e.g. BOOKINGS_SERVER_PORT.
	EnvPrefix = "BOOKINGS"

	// ConfigFileEnv names an explicit config file; a missing explicit file is an error.
	ConfigFileEnv = "BOOKINGS_CONFIG_FILE"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	explicit := os.Getenv(ConfigFileEnv)
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_file", "")
	v.SetDefault("server.log_file_max_size_mb", 1)
	v.SetDefault("server.log_file_max_backups", 5)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.operation_timeout", 5*time.Second)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("auth.authority", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.api_secret", "")
	v.SetDefault("auth.require_https_metadata", false)
	v.SetDefault("auth.issuer_timeout", 5*time.Second)
	v.SetDefault("auth.metadata_cache_ttl", time.Hour)
	v.SetDefault("auth.clock_skew", 2*time.Minute)

	v.SetDefault("api.default_version", "1.0")
	v.SetDefault("api.supported_versions", []string{"1.0", "2.0"})
	v.SetDefault("api.deprecated_versions", []string{})

	v.SetDefault("files.uploads_dir", "./data/Uploads")
	v.SetDefault("files.files_dir", "./data/Files")

	v.SetDefault("seed.on_start", true)
	v.SetDefault("seed.admin_username", "admin")
	v.SetDefault("seed.admin_email", "admin@example.com")

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.service_name", "bookings-api")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	API      APIConfig      `mapstructure:"api" validate:"required"`
	Files    FilesConfig    `mapstructure:"files" validate:"required"`
	Seed     SeedConfig     `mapstructure:"seed"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// LogFile enables a rolling file sink next to stdout when non-empty.
	LogFile           string `mapstructure:"log_file"`
	LogFileMaxSizeMB  int    `mapstructure:"log_file_max_size_mb" validate:"gte=0"`
	LogFileMaxBackups int    `mapstructure:"log_file_max_backups" validate:"gte=0"`

	CORSOrigins       []string      `mapstructure:"cors_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	// Driver selects the entity store backend: "postgres" or "memory".
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL    string `mapstructure:"url" validate:"required_if=Driver postgres,omitempty,url"`

	// OperationTimeout bounds every single store call.
	OperationTimeout time.Duration `mapstructure:"operation_timeout" validate:"gt=0"`

	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`

	MigrateOnStart bool `mapstructure:"migrate_on_start"`
}

// AuthConfig describes the external token issuer every protected request is checked against.
type AuthConfig struct {
	// Authority is the issuer base URL; discovery lives under /.well-known/openid-configuration.
	Authority string `mapstructure:"authority" validate:"required,url"`
	// Audience is the API name tokens must be issued for.
	Audience string `mapstructure:"audience" validate:"required"`
	// APISecret verifies HS256 tokens and authenticates introspection calls.
	APISecret string `mapstructure:"api_secret"`

	RequireHTTPSMetadata bool          `mapstructure:"require_https_metadata"`
	IssuerTimeout        time.Duration `mapstructure:"issuer_timeout" validate:"gt=0"`
	MetadataCacheTTL     time.Duration `mapstructure:"metadata_cache_ttl" validate:"gt=0"`
	ClockSkew            time.Duration `mapstructure:"clock_skew" validate:"gte=0"`
}

// APIConfig fixes the set of API versions served by this process.
type APIConfig struct {
	DefaultVersion     string   `mapstructure:"default_version" validate:"required"`
	SupportedVersions  []string `mapstructure:"supported_versions" validate:"required,min=1,dive,required"`
	DeprecatedVersions []string `mapstructure:"deprecated_versions"`
}

// FilesConfig locates the directories served under /Uploads and /Files.
type FilesConfig struct {
	UploadsDir string `mapstructure:"uploads_dir" validate:"required"`
	FilesDir   string `mapstructure:"files_dir" validate:"required"`
}

// SeedConfig controls the initial data written by the seed step.
type SeedConfig struct {
	OnStart       bool   `mapstructure:"on_start"`
	AdminUsername string `mapstructure:"admin_username" validate:"required_if=OnStart true"`
	AdminEmail    string `mapstructure:"admin_email" validate:"required_if=OnStart true,omitempty,email"`
}

// TracingConfig controls the spans recorded around store operations.
type TracingConfig struct {
	// Exporter is "none" (spans are sampled but dropped) or "stdout".
	Exporter    string  `mapstructure:"exporter" validate:"oneof=none stdout"`
	ServiceName string  `mapstructure:"service_name" validate:"required"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

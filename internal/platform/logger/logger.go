// Package logger provides structured logging functionality for the application.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phrazzld/bookings-api/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup initializes and configures the application's logging system based on
// the provided configuration. It creates a structured JSON logger with the
// appropriate log level and sets it as the default logger for the application.
//
// When cfg.LogFile is set, records are also written to a size-rolled file.
func Setup(cfg config.ServerConfig) (*slog.Logger, error) {
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, newRollingFile(cfg))
	}

	logger := New(out, cfg.LogLevel)

	// This allows using the slog package functions directly (slog.Info, slog.Error, etc.)
	slog.SetDefault(logger)

	return logger, nil
}

// New builds a JSON logger writing to out at the named level.
func New(out io.Writer, levelName string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelName),
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// ParseLevel maps a configured level name (case-insensitive) to a slog.Level.
// Unknown names fall back to info and emit a warning on stderr.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		// This will use the default handler (text output to stderr)
		tmpLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", name,
			"default_level", "info")
		return slog.LevelInfo
	}
}

func newRollingFile(cfg config.ServerConfig) *lumberjack.Logger {
	maxSize := cfg.LogFileMaxSizeMB
	if maxSize <= 0 {
		maxSize = 1
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    maxSize,
		MaxBackups: cfg.LogFileMaxBackups,
		Compress:   false,
	}
}

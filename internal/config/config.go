// Package config loads process settings from the environment and
// invocation parameters from a params file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process-wide settings. Connection and statement settings
// belong to each invocation and live in Params.
type Config struct {
	// --- Logging ---

	LogLevel slog.Level
	// json or text
	LogFormat string

	// --- HTTP front end ---

	// Bind host. Set PGQUERY_BIND_HOST=0.0.0.0 to allow LAN access.
	Host string
	Port int
	// Concurrent client connections accepted by the listener
	MaxConnections  int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// --- Execution ---

	// Upper bound for one invocation, zero means no limit
	QueryTimeout time.Duration
}

// Load reads the configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// PGQUERY_LOG_LEVEL (default info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PGQUERY_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PGQUERY_LOG_LEVEL: %w", err)
	}

	// PGQUERY_LOG_FORMAT (default text)
	cfg.LogFormat = getEnvDefault("PGQUERY_LOG_FORMAT", "text")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PGQUERY_LOG_FORMAT: invalid value %q, allowed: json, text", cfg.LogFormat)
	}

	cfg.Host = getEnvDefault("PGQUERY_BIND_HOST", "127.0.0.1")

	cfg.Port, err = getEnvInt("PGQUERY_PORT", 5173)
	if err != nil {
		return nil, fmt.Errorf("PGQUERY_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PGQUERY_PORT: value %d out of range 1-65535", cfg.Port)
	}

	cfg.MaxConnections, err = getEnvInt("PGQUERY_MAX_CONNECTIONS", 16)
	if err != nil {
		return nil, fmt.Errorf("PGQUERY_MAX_CONNECTIONS: %w", err)
	}
	if cfg.MaxConnections < 1 {
		return nil, fmt.Errorf("PGQUERY_MAX_CONNECTIONS: value %d must be positive", cfg.MaxConnections)
	}

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"PGQUERY_READ_TIMEOUT", &cfg.ReadTimeout, 10 * time.Second},
		{"PGQUERY_WRITE_TIMEOUT", &cfg.WriteTimeout, 5 * time.Minute},
		{"PGQUERY_IDLE_TIMEOUT", &cfg.IdleTimeout, 30 * time.Second},
		{"PGQUERY_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, 30 * time.Second},
		{"PGQUERY_QUERY_TIMEOUT", &cfg.QueryTimeout, 0},
	}
	for _, d := range durations {
		*d.dst, err = getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if *d.dst < 0 {
			return nil, fmt.Errorf("%s: negative duration %s", d.key, *d.dst)
		}
	}

	return cfg, nil
}

// Addr returns the listen address of the HTTP front end.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SetupLogger builds the process logger writing to w and installs it as the
// slog default.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q (use Go format: 30s, 1h, 15m)", val)
	}
	return d, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid level %q, allowed: debug, info, warn, error", level)
	}
}

// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
//
// Two backends are supported: "postgres" for production deployments and
// "sqlite" for single-node or development use. URL is required only for
// the postgres backend.
type DatabaseConfig struct {
	// Backend selects the storage engine: postgres or sqlite (default: postgres)
	Backend string `env:"DB_BACKEND" default:"postgres"`

	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the sqlite database file (default: orders.db)
	SQLitePath string `env:"DB_SQLITE_PATH" default:"orders.db"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds order file import settings.
type ImportConfig struct {
	// Delimiter separates fields in uploaded order files (default: |)
	Delimiter string `env:"IMPORT_DELIMITER" default:"|"`

	// StagingDir is where uploaded files are staged before processing (default: ./staging)
	StagingDir string `env:"IMPORT_STAGING_DIR" default:"./staging"`

	// MaxUploadSize is the maximum allowed upload size in bytes (default: 100MB)
	MaxUploadSize int64 `env:"IMPORT_MAX_UPLOAD_SIZE" default:"104857600"`

	// RequiredFields are the columns an order file header must declare
	// (default: id,name,email,state,zipcode,birthday)
	RequiredFields []string `env:"IMPORT_REQUIRED_FIELDS" default:"id,name,email,state,zipcode,birthday"`

	// InputDateFormat is the Go layout birthdays arrive in (default: 2006-01-02)
	InputDateFormat string `env:"IMPORT_INPUT_DATE_FORMAT" default:"2006-01-02"`

	// OutputDateFormat is the Go layout birthdays are rendered in (default: January 2, 2006)
	OutputDateFormat string `env:"IMPORT_OUTPUT_DATE_FORMAT" default:"January 2, 2006"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// DelimiterRune returns the configured field delimiter as a rune,
// falling back to '|' when unset.
func (c *ImportConfig) DelimiterRune() rune {
	for _, r := range c.Delimiter {
		return r
	}
	return '|'
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}

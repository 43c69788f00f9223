// Package config provides centralized configuration for the transfer server.
// Values come from environment variables with defaults, and the whole
// configuration is validated on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Transfer  TransferConfig
	Files     FilesConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining transfers (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StoreConfig holds tabular store defaults. Requests may carry their own
// connection settings; these are used when a request leaves them empty.
type StoreConfig struct {
	// Driver selects the store client: postgres or duckdb (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// URL is a full connection string. For duckdb it is the database file path;
	// empty means an in-memory database.
	URL string `env:"STORE_URL" envAlt:"DATABASE_URL"`

	// MaxConns is the per-database pool size (default: 10)
	MaxConns int `env:"STORE_MAX_CONNS" default:"10"`

	// MinConns is the number of idle connections kept open (default: 0)
	MinConns int `env:"STORE_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a pooled connection (default: 1h)
	MaxConnLifetime time.Duration `env:"STORE_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime closes idle pooled connections after this duration (default: 30m)
	MaxConnIdleTime time.Duration `env:"STORE_MAX_CONN_IDLE_TIME" default:"30m"`

	// ConnectTimeout bounds connection tests and per-transfer connects (default: 10s)
	ConnectTimeout time.Duration `env:"STORE_CONNECT_TIMEOUT" default:"10s"`
}

// TransferConfig holds settings for the batch transfer engine.
type TransferConfig struct {
	// MaxConcurrent is the number of transfer workers (default: 5)
	MaxConcurrent int `env:"TRANSFER_MAX_CONCURRENT" default:"5"`

	// QueueSize is how many accepted transfers may wait for a worker (default: 100)
	QueueSize int `env:"TRANSFER_QUEUE_SIZE" default:"100"`

	// MaxWaitTime is how long a request waits for queue space (default: 5s)
	MaxWaitTime time.Duration `env:"TRANSFER_MAX_WAIT_TIME" default:"5s"`

	// ImportBatchSize is the rows per insert batch for file -> store (default: 1000)
	ImportBatchSize int `env:"TRANSFER_IMPORT_BATCH_SIZE" default:"1000"`

	// ExportBatchSize is the page size for store -> file (default: 10000)
	ExportBatchSize int `env:"TRANSFER_EXPORT_BATCH_SIZE" default:"10000"`

	// Retention is how long finished operations stay pollable (default: 1h)
	Retention time.Duration `env:"TRANSFER_RETENTION" default:"1h"`

	// Timeout is the maximum duration of a single transfer (default: 2h)
	Timeout time.Duration `env:"TRANSFER_TIMEOUT" default:"2h"`

	// StreamExports appends each exported page to the file instead of
	// accumulating the full result before one write (default: false)
	StreamExports bool `env:"TRANSFER_STREAM_EXPORTS" default:"false"`

	// Delimiter is used when a request does not name one (default: ",")
	Delimiter string `env:"TRANSFER_DELIMITER" default:","`

	// PreviewRows is the default row limit for previews (default: 100)
	PreviewRows int `env:"TRANSFER_PREVIEW_ROWS" default:"100"`
}

// FilesConfig holds settings for the delimited file side.
type FilesConfig struct {
	// Root confines all file paths used by transfers (default: ./data)
	Root string `env:"FILES_ROOT" default:"./data"`

	// UploadDir is the directory under Root where uploaded files land (default: uploads)
	UploadDir string `env:"FILES_UPLOAD_DIR" default:"uploads"`

	// MaxUploadSize is the maximum multipart upload size in bytes (default: 100MB)
	MaxUploadSize int64 `env:"FILES_MAX_UPLOAD_SIZE" default:"104857600"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the limit per client IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// AllowedOrigins is the CORS origin list (default: *)
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// TelemetryConfig holds tracing and timing settings.
type TelemetryConfig struct {
	// ServiceName is reported on spans and metrics (default: ferry)
	ServiceName string `env:"OTEL_SERVICE_NAME" default:"ferry"`

	// ServerTiming adds Server-Timing headers to API responses (default: true)
	ServerTiming bool `env:"SERVER_TIMING_ENABLED" default:"true"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Package config loads runtime settings from the environment. Every value has
// an env var, most have defaults, and Validate reports all problems at once.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Ingest   IngestConfig
	Server   ServerConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Inbox    InboxConfig
	S3       S3Config
	Events   EventsConfig
	Seed     SeedConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// DATABASE_URL and DB_URL are both accepted.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// IngestConfig tunes file processing.
type IngestConfig struct {
	// MaxFileSize is the largest accepted input in bytes (default: 100MB).
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"104857600"`

	// ProgressInterval logs progress every N rows.
	ProgressInterval int `env:"INGEST_PROGRESS_INTERVAL" default:"1000"`

	// MaxWait is how long a run waits for the single ingest slot.
	MaxWait time.Duration `env:"INGEST_MAX_WAIT" default:"30s"`

	// Timeout bounds one file run.
	Timeout time.Duration `env:"INGEST_TIMEOUT" default:"30m"`
}

// ServerConfig holds HTTP server settings for `serve`.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// IngestLimit is requests per minute for POST /api/jobs.
	IngestLimit int `env:"RATE_LIMIT_INGEST" default:"10"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are honored.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys are accepted in the X-API-Key header. Setting any enforces them.
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey enforces X-API-Key on /api routes even with no keys set.
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`
}

// InboxConfig drives the scheduled inbox scan in `serve`. An empty Dir
// disables it.
type InboxConfig struct {
	Dir        string        `env:"INBOX_DIR"`
	ArchiveDir string        `env:"INBOX_ARCHIVE_DIR"`
	FailedDir  string        `env:"INBOX_FAILED_DIR"`
	Schedule   string        `env:"INBOX_SCHEDULE" default:"@every 1m"`
	RunTimeout time.Duration `env:"INBOX_RUN_TIMEOUT" default:"30m"`
}

// S3Config selects the object store used for s3:// inputs.
type S3Config struct {
	Region       string `env:"S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`
	Endpoint     string `env:"S3_ENDPOINT"`
	AccessKey    string `env:"S3_ACCESS_KEY" envAlt:"AWS_ACCESS_KEY_ID"`
	SecretKey    string `env:"S3_SECRET_KEY" envAlt:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle bool   `env:"S3_USE_PATH_STYLE" default:"false"`
	TempDir      string `env:"S3_TEMP_DIR"`
}

// EventsConfig enables NATS job events. An empty URL disables them.
type EventsConfig struct {
	NATSURL    string `env:"NATS_URL"`
	Subject    string `env:"NATS_SUBJECT" default:"ingest.jobs.finished"`
	ClientName string `env:"NATS_CLIENT_NAME" default:"deliveryingest"`
}

// SeedConfig names the default seed file.
type SeedConfig struct {
	File string `env:"SEED_FILE" default:"config/integrations.yaml"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// InboxEnabled reports whether `serve` should watch an inbox.
func (c *Config) InboxEnabled() bool {
	return c.Inbox.Dir != ""
}

// EventsEnabled reports whether job events go to NATS.
func (c *Config) EventsEnabled() bool {
	return c.Events.NATSURL != ""
}

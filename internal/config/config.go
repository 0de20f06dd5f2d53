// Package config provides centralized configuration management for the CRM API.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"strings"
	"time"
)

// DefaultJWTSecret is the development signing secret. Production refuses it.
const DefaultJWTSecret = "your-secret-key-change-in-production"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Auth     AuthConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// AppConfig holds identity and deployment environment.
type AppConfig struct {
	Name    string `env:"APP_NAME" default:"CRM API"`
	Version string `env:"APP_VERSION" default:"1.0.0"`

	// Env is the deployment environment: development, test, staging, production.
	// Destructive bulk operations are only available in development-like envs.
	Env string `env:"APP_ENV" default:"development"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `env:"SERVER_PORT" default:"8000"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxBodyBytes caps request bodies; imports of 20k rows fit comfortably.
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"52428800"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "postgres" or "memory". Memory is for local development only.
	Driver string `env:"STORE_DRIVER" default:"postgres"`
}

// AuthConfig holds token and password settings.
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET" envAlt:"SECRET_KEY" default:"your-secret-key-change-in-production"`
	TokenTTL  time.Duration `env:"JWT_TTL" default:"168h"`

	// BcryptCost is the bcrypt work factor (4-31).
	BcryptCost int `env:"BCRYPT_COST" default:"10"`

	// OpenRoleSignup lets registrants pick their own role, including admin.
	OpenRoleSignup bool `env:"AUTH_OPEN_ROLE_SIGNUP" default:"false"`
}

// ImportConfig holds bulk import limits.
type ImportConfig struct {
	MaxRows    int           `env:"IMPORT_MAX_ROWS" default:"20000"`
	RateLimit  int           `env:"IMPORT_RATE_LIMIT" default:"3"`
	RateWindow time.Duration `env:"IMPORT_RATE_WINDOW" default:"60s"`
}

// RateLimitConfig holds login throttling settings.
type RateLimitConfig struct {
	// Enabled controls whether login rate limiting is active (default: true)
	Enabled     bool          `env:"RATE_LIMIT_ENABLED" default:"true"`
	LoginLimit  int           `env:"LOGIN_RATE_LIMIT" default:"10"`
	LoginWindow time.Duration `env:"LOGIN_RATE_WINDOW" default:"60s"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CORSOrigins is a comma-separated list of allowed browser origins.
	CORSOrigins []string `env:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173,http://localhost:5174"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
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
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// IsProduction reports whether the app runs in a production environment.
func (c *AppConfig) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// AllowsBulkClear reports whether delete-all endpoints are enabled.
func (c *AppConfig) AllowsBulkClear() bool {
	switch strings.ToLower(c.Env) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

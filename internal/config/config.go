package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/PriceTracker/pkg/config"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Backend drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the price tracker service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8010"`

	// Remote data client
	BackendDriver string `env:"BACKEND_DRIVER" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"pricetracker"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"pricetracker_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"pricetracker"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns         int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime  time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	DBMaxConnIdleTime  time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	SlowQueryThreshold int           `env:"LOG_SLOW_QUERY_MS" envDefault:"200"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	PriceFeedEnabled bool     `env:"PRICEFEED_ENABLED" envDefault:"true"`
	PriceFeedGroupID string   `env:"PRICEFEED_GROUP_ID" envDefault:"pricetracker-pricefeed"`

	// JWT
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessExpiry time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"1h"`

	// Dashboard
	ReloadDebounce time.Duration `env:"DASHBOARD_RELOAD_DEBOUNCE" envDefault:"150ms"`
	IdleTTL        time.Duration `env:"DASHBOARD_IDLE_TTL" envDefault:"30m"`

	// Image probe
	ImageProbeEnabled bool          `env:"IMAGE_PROBE_ENABLED" envDefault:"false"`
	ImageProbeTimeout time.Duration `env:"IMAGE_PROBE_TIMEOUT" envDefault:"3s"`

	// Rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Sign-in widget appearance
	AuthAppName      string   `env:"AUTH_APP_NAME" envDefault:"PriceTracker AI"`
	AuthTagline      string   `env:"AUTH_TAGLINE" envDefault:"Track prices, save money, shop smarter"`
	AuthPrimaryColor string   `env:"AUTH_PRIMARY_COLOR" envDefault:"hsl(262 83% 58%)"`
	AuthAccentColor  string   `env:"AUTH_ACCENT_COLOR" envDefault:"hsl(280 100% 70%)"`
	AuthProviders    []string `env:"AUTH_PROVIDERS" envDefault:"email" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool              `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string            `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELHeaders    map[string]string `env:"OTEL_EXPORTER_OTLP_HEADERS" envSeparator:"," envKeyValSeparator:"="`
	OTELSampleRate float64           `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load pricetracker config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field rules after parsing.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.BackendDriver != DriverPostgres && c.BackendDriver != DriverMemory {
		return fmt.Errorf("BACKEND_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.BackendDriver)
	}
	if c.JWTAccessExpiry <= 0 {
		return errors.New("JWT_ACCESS_TOKEN_EXPIRY must be positive")
	}
	if c.ReloadDebounce < 0 {
		return errors.New("DASHBOARD_RELOAD_DEBOUNCE must not be negative")
	}
	if c.IdleTTL <= 0 {
		return errors.New("DASHBOARD_IDLE_TTL must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("invalid rate limit: rps=%v burst=%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.OTELSampleRate)
	}

	// Outside development an explicitly set, strong JWT secret is required.
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}
	return nil
}

// UsesPostgres reports whether the PostgreSQL-backed data client is selected.
func (c *Config) UsesPostgres() bool {
	return c.BackendDriver == DriverPostgres
}

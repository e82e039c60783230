// Package config loads the checkout service settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/TableOrder/pkg/config"
)

// Payment providers.
const (
	ProviderMock   = "mock"
	ProviderStripe = "stripe"
)

// Config holds all configuration for the table ordering service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Restaurant backend
	BackendURL     string        `env:"BACKEND_URL" envDefault:"http://localhost:3000"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`

	// Circuit breaker around the restaurant backend
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"15"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Redis (carts, order history, restaurant cache, event dedup)
	RedisURL      string `env:"REDIS_URL"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`

	CartTTL       time.Duration `env:"CART_TTL" envDefault:"12h"`
	HistoryTTL    time.Duration `env:"HISTORY_TTL" envDefault:"24h"`
	RestaurantTTL time.Duration `env:"RESTAURANT_CACHE_TTL" envDefault:"5m"`

	// PostgreSQL (checkout attempt journal)
	PostgresURL  string `env:"DATABASE_URL"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"tableorder"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"tableorder"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"tableorder"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"15"`

	// Kafka. An empty broker list disables event publishing and the payment
	// status consumer.
	KafkaBrokers       []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaGroupID       string        `env:"KAFKA_GROUP_ID" envDefault:"tableorder-checkout"`
	KafkaDedupTTL      time.Duration `env:"KAFKA_DEDUP_TTL" envDefault:"24h"`
	KafkaEnableDLQ     bool          `env:"KAFKA_ENABLE_DLQ" envDefault:"true"`
	KafkaConsumerRetry int           `env:"KAFKA_CONSUMER_MAX_RETRIES" envDefault:"3"`

	// Checkout
	DefaultCurrency  string        `env:"DEFAULT_CURRENCY" envDefault:"USD"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	PollMaxAttempts  int           `env:"POLL_MAX_ATTEMPTS" envDefault:"30"`
	PaymentProvider  string        `env:"PAYMENT_PROVIDER" envDefault:"mock"`
	StripeSecretKey  string        `env:"STRIPE_SECRET_KEY"`
	StripeAccount    string        `env:"STRIPE_ACCOUNT"`
	MockConfirmDelay time.Duration `env:"MOCK_CONFIRM_DELAY" envDefault:"0s"`
	IdleTimeout      time.Duration `env:"CHECKOUT_IDLE_TIMEOUT" envDefault:"15m"`

	// Reconciler for paid checkouts still waiting for an order number
	ReconcileInterval  time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileOlderThan time.Duration `env:"RECONCILE_OLDER_THAN" envDefault:"2m"`
	ReconcileBatchSize int           `env:"RECONCILE_BATCH_SIZE" envDefault:"50"`

	// Rate limiting of the table API, per client IP. RPS 0 disables it.
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"20"`
	RateLimitTTL   time.Duration `env:"RATE_LIMIT_TTL" envDefault:"3m"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Signed table tokens carried by the QR link. Empty disables the check.
	TableTokenSecret string `env:"TABLE_TOKEN_SECRET"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load tableorder config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants. pkg/config calls it after parsing.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if _, err := url.ParseRequestURI(c.BackendURL); err != nil {
		return fmt.Errorf("invalid BACKEND_URL %q: %w", c.BackendURL, err)
	}
	if c.PostgresURL == "" && c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST or DATABASE_URL is required")
	}
	if c.RedisURL == "" && c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST or REDIS_URL is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.PollMaxAttempts < 1 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be at least 1, got %d", c.PollMaxAttempts)
	}
	// Another instance's reconciler must not settle an attempt that is still
	// polling.
	if budget := c.PollBudget(); c.ReconcileOlderThan <= budget {
		return fmt.Errorf("RECONCILE_OLDER_THAN (%s) must exceed the poll budget POLL_INTERVAL x POLL_MAX_ATTEMPTS (%s)", c.ReconcileOlderThan, budget)
	}
	if c.IdleTimeout <= c.BackendTimeout {
		return fmt.Errorf("CHECKOUT_IDLE_TIMEOUT (%s) must exceed BACKEND_TIMEOUT (%s)", c.IdleTimeout, c.BackendTimeout)
	}
	if c.TableTokenSecret != "" && len(c.TableTokenSecret) < 32 {
		return fmt.Errorf("TABLE_TOKEN_SECRET must be at least 32 bytes")
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be an ISO 4217 code, got %q", c.DefaultCurrency)
	}
	switch c.PaymentProvider {
	case ProviderMock:
	case ProviderStripe:
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return fmt.Errorf("PAYMENT_PROVIDER must be %q or %q, got %q", ProviderMock, ProviderStripe, c.PaymentProvider)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %f", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is on")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// PollBudget is the longest a checkout polls for its order number.
func (c *Config) PollBudget() time.Duration {
	return c.PollInterval * time.Duration(c.PollMaxAttempts)
}

// KafkaEnabled reports whether any broker is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

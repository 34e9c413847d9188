package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/freshcart/internal/domain/order"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (FRESH_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (FRESH_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SiteURL      string `default:"http://localhost:8080" usage:"Public storefront URL used in referral links" flag:"site-url"`
	HomePath     string `default:"/" usage:"Where referral links redirect after applying the coupon" flag:"home-path"`
	ImageBaseURL string `default:"" usage:"Base URL for product images" flag:"image-base-url"`
	Auth         AuthConfig
	Session      SessionConfig
	Pricing      PricingConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
}

// AuthConfig configures verification of identity tokens issued by the
// account service.
type AuthConfig struct {
	JWTSecret string `usage:"HS256 secret shared with the identity provider (FRESH_AUTH_JWT_SECRET)" flag:"jwt-secret"`
	Issuer    string `default:"" usage:"Expected token issuer; empty disables the check"`
}

// SessionConfig controls the shopper session cookie and its backing store.
type SessionConfig struct {
	CookieName   string        `default:"freshcart_session" usage:"Session cookie name"`
	TTL          time.Duration `default:"336h" usage:"Session lifetime"`
	SecureCookie bool          `default:"false" usage:"Mark the session cookie Secure" flag:"secure-cookie"`
	RedisURL     string        `default:"" usage:"Redis URL for sessions (FRESH_SESSION_REDIS_URL or REDIS_URL); empty keeps sessions in memory" flag:"redis-url"`
	// IdempotencyTTL is how long an order Idempotency-Key is remembered.
	IdempotencyTTL time.Duration `default:"24h" usage:"Order idempotency key lifetime"`
}

// PricingConfig holds the delivery fee policy.
type PricingConfig struct {
	FreeDeliveryThreshold string `default:"500" usage:"Subtotal at or above which delivery is free"`
	DeliveryFee           string `default:"40" usage:"Delivery fee below the threshold"`
}

// KafkaConfig configures order event publishing. Publishing is disabled when
// no brokers are set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers for order events"`
	Topic   string   `default:"freshcart.orders" usage:"Order events topic"`
}

// RateLimitConfig controls the per-visitor limiter on coupon endpoints.
type RateLimitConfig struct {
	Max    int           `default:"20" usage:"Max coupon attempts per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FRESH",
		Files:     []string{"config.yaml", "/etc/freshcart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing or malformed settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set FRESH_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required: set FRESH_AUTH_JWT_SECRET")
	}
	if _, err := c.Pricing.Policy(); err != nil {
		return err
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.Errorf("rate limit must be positive, got %d per %s", c.RateLimit.Max, c.RateLimit.Window)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL, REDIS_URL and PORT.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Session.RedisURL == "" {
		c.Session.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Policy parses the configured delivery fee rules.
func (p PricingConfig) Policy() (order.Policy, error) {
	threshold, err := decimal.NewFromString(p.FreeDeliveryThreshold)
	if err != nil {
		return order.Policy{}, errors.Wrap(err, "parse free delivery threshold")
	}
	fee, err := decimal.NewFromString(p.DeliveryFee)
	if err != nil {
		return order.Policy{}, errors.Wrap(err, "parse delivery fee")
	}
	if threshold.IsNegative() || fee.IsNegative() {
		return order.Policy{}, errors.New("delivery pricing must not be negative")
	}
	return order.Policy{FreeDeliveryThreshold: threshold, DeliveryFee: fee}, nil
}

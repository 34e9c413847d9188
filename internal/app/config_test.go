package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Addr:        defaultAddr,
		DatabaseURL: "postgres://localhost/fresh",
		Auth:        AuthConfig{JWTSecret: "s3cret"},
		Pricing:     PricingConfig{FreeDeliveryThreshold: "500", DeliveryFee: "40"},
		RateLimit:   RateLimitConfig{Max: 20, Window: time.Minute},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid"},
		{name: "missing database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL is required"},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: "JWT secret is required"},
		{name: "bad threshold", mutate: func(c *Config) { c.Pricing.FreeDeliveryThreshold = "lots" }, wantErr: "free delivery threshold"},
		{name: "negative fee", mutate: func(c *Config) { c.Pricing.DeliveryFee = "-1" }, wantErr: "must not be negative"},
		{name: "zero rate limit window", mutate: func(c *Config) { c.RateLimit.Window = 0 }, wantErr: "rate limit must be positive"},
		{name: "negative rate limit window", mutate: func(c *Config) { c.RateLimit.Window = -time.Second }, wantErr: "rate limit must be positive"},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimit.Max = 0 }, wantErr: "rate limit must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPricingConfig_Policy(t *testing.T) {
	p, err := PricingConfig{FreeDeliveryThreshold: "750.50", DeliveryFee: "25"}.Policy()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("750.50").Equal(p.FreeDeliveryThreshold))
	assert.True(t, decimal.NewFromInt(25).Equal(p.Fee(decimal.NewFromInt(750))))
	assert.True(t, p.Fee(decimal.RequireFromString("750.50")).IsZero())
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://platform:6379/0")
	t.Setenv("PORT", "9000")

	cfg := &Config{Addr: defaultAddr}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://platform:6379/0", cfg.Session.RedisURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	// Explicit settings win.
	cfg = &Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant string   `mapstructure:"DEFAULT_TENANT"`
	AllowTTLSecs  int      `mapstructure:"TENANT_ALLOW_TTL_SECONDS"`
	AuthIssuer    string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience  string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSecret    string   `mapstructure:"AUTH_SECRET"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`

	PaymentProvider string `mapstructure:"PAYMENT_PROVIDER"`
	PaymentBaseURL  string `mapstructure:"PAYMENT_BASE_URL"`
	PaymentKeyID    string `mapstructure:"PAYMENT_KEY_ID"`
	PaymentSecret   string `mapstructure:"PAYMENT_SECRET"`
	WebhookSecret   string `mapstructure:"PAYMENT_WEBHOOK_SECRET"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DEFAULT_TENANT", "clinic_default")
	v.SetDefault("TENANT_ALLOW_TTL_SECONDS", 60)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("PAYMENT_PROVIDER", "razorpay")
	v.SetDefault("PAYMENT_BASE_URL", "https://api.razorpay.com/v1")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"DEFAULT_TENANT", "TENANT_ALLOW_TTL_SECONDS",
		"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SECRET", "CORS_ORIGINS",
		"PAYMENT_PROVIDER", "PAYMENT_BASE_URL", "PAYMENT_KEY_ID",
		"PAYMENT_SECRET", "PAYMENT_WEBHOOK_SECRET",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate refuses configurations that would run unsafely outside
// development.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required when ENV is %q; refusing to start without authentication", c.Env)
	}
	if c.PaymentsEnabled() && c.PaymentSecret == "" {
		return fmt.Errorf("PAYMENT_SECRET is required when PAYMENT_KEY_ID is set")
	}
	if c.AllowTTLSecs < 0 {
		return fmt.Errorf("TENANT_ALLOW_TTL_SECONDS must not be negative")
	}
	return nil
}

// PaymentsEnabled reports whether online payment verification is
// configured. Without provider credentials only cash bookings work.
func (c *Config) PaymentsEnabled() bool {
	return c.PaymentKeyID != ""
}

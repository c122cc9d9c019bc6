package config

import (
	"testing"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinicq")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.DefaultTenant != "clinic_default" {
		t.Errorf("unexpected default tenant %s", cfg.DefaultTenant)
	}
	if cfg.AllowTTLSecs != 60 {
		t.Errorf("expected 60s allow TTL, got %d", cfg.AllowTTLSecs)
	}
	if !cfg.IsDev() {
		t.Error("expected development mode by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinicq")
	t.Setenv("PORT", "9999")
	t.Setenv("ENV", "production")
	t.Setenv("DEFAULT_TENANT", "clinic_main")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9999" || cfg.Env != "production" || cfg.DefaultTenant != "clinic_main" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if !cfg.IsProduction() {
		t.Error("expected production mode")
	}
}

func TestValidate_ProductionNeedsAuthSecret(t *testing.T) {
	cfg := &Config{Env: "production"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure without AUTH_SECRET in production")
	}

	cfg.AuthSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestValidate_PaymentsNeedSecret(t *testing.T) {
	cfg := &Config{Env: "development", PaymentKeyID: "rzp_test_key"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure without PAYMENT_SECRET")
	}

	cfg.PaymentSecret = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestPaymentsEnabled(t *testing.T) {
	cfg := &Config{}
	if cfg.PaymentsEnabled() {
		t.Error("payments should be disabled without a key id")
	}
	cfg.PaymentKeyID = "rzp_test_key"
	if !cfg.PaymentsEnabled() {
		t.Error("payments should be enabled with a key id")
	}
}

package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/consent_test")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("expected default env development, got %s", cfg.Env)
	}
	if cfg.ConsentIssuer != "samruddhi-auth" {
		t.Errorf("expected default issuer samruddhi-auth, got %s", cfg.ConsentIssuer)
	}
	if cfg.StoreTimeout != 3*time.Second {
		t.Errorf("expected default store timeout 3s, got %s", cfg.StoreTimeout)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")

	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is missing")
	}
}

func TestValidateDevSkipsSecrets(t *testing.T) {
	cfg := &Config{Env: "development"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("development config should validate without secrets: %v", err)
	}
}

func TestValidateProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{
		Env:      "production",
		RedisURL: "redis://localhost:6379/0",
		MongoURL: "mongodb://localhost:27017",
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing AUTH_SECRET")
	}

	cfg.AuthSecret = "staff-secret"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing CONSENT_SECRET")
	}

	cfg.ConsentSecret = "short"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for short CONSENT_SECRET")
	}

	cfg.ConsentSecret = "0123456789abcdef0123456789abcdef"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

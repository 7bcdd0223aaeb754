package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "verifier"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret", AdminAPIKey: "key"},
		Calls: CallConfig{
			Provider:           "twilio",
			MaxAttempts:        2,
			BackoffMinutes:     "15,120",
			MaxConcurrentCalls: 1,
			Simulated:          true,
		},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_AcceptsCompleteLocalConfig(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.DB.SSLMode = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	c := validConfig()
	c.Calls.Provider = "carrierpigeon"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestValidate_LiveModeRequiresWebhookBase(t *testing.T) {
	c := validConfig()
	c.Calls.Simulated = false
	c.Calls.WebhookBase = ""
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for live mode without WEBHOOK_BASE_URL")
	}
	if !strings.Contains(err.Error(), "WEBHOOK_BASE_URL") {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Calls.WebhookBase = "https://hooks.example.com"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestPostgresDSNDefaultsSSLMode(t *testing.T) {
	c := validConfig()
	dsn := c.PostgresDSN()
	if !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("expected sslmode disable default, got %q", dsn)
	}
}

func TestHTTPAndRedisAddrs(t *testing.T) {
	c := validConfig()
	if got := c.HTTPAddr(); got != ":8080" {
		t.Fatalf("http addr: %q", got)
	}
	if got := c.RedisAddr(); got != "localhost:6379" {
		t.Fatalf("redis addr: %q", got)
	}
}

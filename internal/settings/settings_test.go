package settings

import (
	"context"
	"testing"
	"time"

	"account-verifier/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		Calls: config.CallConfig{
			Provider:            "twilio",
			WebhookBase:         "https://global.example.com",
			MaxAttempts:         2,
			BackoffMinutes:      "15,120",
			CallTimeout:         5 * time.Minute,
			LowBalanceThreshold: 5.0,
			MaxConcurrentCalls:  1,
			Simulated:           true,
			EnableTranscription: true,
		},
		Twilio: config.TwilioConfig{WebhookBase: "https://twilio.example.com"},
	}
}

func TestProviderPrecedence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewRuntime(store, testConfig(), nil)

	if got := r.Provider(ctx); got != "twilio" {
		t.Fatalf("env default: got %q", got)
	}

	if err := store.Set(ctx, KeyProvider, "Telnyx"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := r.Provider(ctx); got != "telnyx" {
		t.Fatalf("override must win and be lowercased, got %q", got)
	}

	if err := store.Delete(ctx, KeyProvider); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := r.Provider(ctx); got != "twilio" {
		t.Fatalf("deleting the override must restore the env default, got %q", got)
	}
}

func TestProviderDefaultsToTwilio(t *testing.T) {
	r := NewRuntime(NewMemoryStore(), config.Config{}, nil)
	if got := r.Provider(context.Background()); got != "twilio" {
		t.Fatalf("got %q", got)
	}
}

func TestWebhookBaseResolution(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewRuntime(store, testConfig(), nil)

	if got := r.ProviderWebhookBase(ctx, "twilio"); got != "https://twilio.example.com" {
		t.Fatalf("provider base from env: got %q", got)
	}
	if got := r.ProviderWebhookBase(ctx, "telnyx"); got != "" {
		t.Fatalf("unset provider base must be empty, got %q", got)
	}
	if got := r.GlobalWebhookBase(ctx); got != "https://global.example.com" {
		t.Fatalf("global base: got %q", got)
	}

	if err := store.Set(ctx, ProviderWebhookKey("twilio"), "https://override.example.com/"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := r.ProviderWebhookBase(ctx, "twilio"); got != "https://override.example.com" {
		t.Fatalf("override must win and be trimmed, got %q", got)
	}
}

func TestRetryPolicyOverrides(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewRuntime(store, testConfig(), nil)

	p := r.RetryPolicy(ctx)
	if p.MaxAttempts != 2 || len(p.Backoff) != 2 || p.Backoff[0] != 15*time.Minute {
		t.Fatalf("env policy: %+v", p)
	}

	if err := store.Set(ctx, KeyMaxAttempts, "4"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, KeyBackoffMinutes, "1,5,30"); err != nil {
		t.Fatalf("set: %v", err)
	}
	p = r.RetryPolicy(ctx)
	if p.MaxAttempts != 4 || len(p.Backoff) != 3 || p.Backoff[2] != 30*time.Minute {
		t.Fatalf("override policy: %+v", p)
	}

	// Garbage overrides fall back rather than break scheduling.
	if err := store.Set(ctx, KeyBackoffMinutes, "nonsense"); err != nil {
		t.Fatalf("set: %v", err)
	}
	p = r.RetryPolicy(ctx)
	if len(p.Backoff) == 0 {
		t.Fatalf("invalid override must fall back to a usable table")
	}
}

func TestBoolAndNumericOverrides(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewRuntime(store, testConfig(), nil)

	if !r.Simulated(ctx) {
		t.Fatalf("env default simulated=true")
	}
	if err := store.Set(ctx, KeySimulatedMode, "false"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if r.Simulated(ctx) {
		t.Fatalf("override simulated=false must win")
	}

	if err := store.Set(ctx, KeyMaxConcurrentCalls, "3"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := r.MaxConcurrentCalls(ctx); got != 3 {
		t.Fatalf("got %d", got)
	}
	if err := store.Set(ctx, KeyMaxConcurrentCalls, "0"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := r.MaxConcurrentCalls(ctx); got != 1 {
		t.Fatalf("invalid override must fall back to env, got %d", got)
	}

	if err := store.Set(ctx, KeyLowBalance, "12.5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := r.LowBalanceThreshold(ctx); got != 12.5 {
		t.Fatalf("got %v", got)
	}
}

func TestNilStoreUsesEnvDefaults(t *testing.T) {
	r := NewRuntime(nil, testConfig(), nil)
	ctx := context.Background()
	if got := r.Provider(ctx); got != "twilio" {
		t.Fatalf("got %q", got)
	}
	if !r.Simulated(ctx) {
		t.Fatalf("expected env default")
	}
}

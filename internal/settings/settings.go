// Package settings resolves runtime-tunable values with a defined
// precedence: persisted override > environment default. Overrides are edited
// through the admin surface and take effect without a restart.
package settings

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"account-verifier/internal/config"
	"account-verifier/internal/retry"
)

// Well-known override keys.
const (
	KeyProvider            = "telephony_provider"
	KeyWebhookBase         = "webhook_base_url"
	KeyMaxAttempts         = "max_retry_attempts"
	KeyBackoffMinutes      = "retry_backoff_minutes"
	KeyLowBalance          = "low_balance_threshold"
	KeyMaxConcurrentCalls  = "max_concurrent_calls"
	KeySimulatedMode       = "simulated_mode"
	KeyEnableTranscription = "enable_transcription"
)

// ProviderWebhookKey returns the override key for a provider-specific
// callback base, e.g. "twilio_webhook_base_url".
func ProviderWebhookKey(provider string) string {
	return provider + "_webhook_base_url"
}

// Store is the persistence contract for overrides.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]string, error)
}

// Runtime reads settings with override precedence. Store errors degrade to
// the env default; a flaky settings store must never block call processing.
type Runtime struct {
	store Store
	calls config.CallConfig

	// providerBases are the env-configured provider-specific callback bases.
	providerBases map[string]string

	log *slog.Logger
}

func NewRuntime(store Store, cfg config.Config, log *slog.Logger) *Runtime {
	if log == nil {
		log = slog.Default()
	}
	return &Runtime{
		store: store,
		calls: cfg.Calls,
		providerBases: map[string]string{
			"twilio": cfg.Twilio.WebhookBase,
			"telnyx": cfg.Telnyx.WebhookBase,
			"plivo":  cfg.Plivo.WebhookBase,
		},
		log: log,
	}
}

func (r *Runtime) get(ctx context.Context, key string) (string, bool) {
	if r.store == nil {
		return "", false
	}
	v, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.log.Warn("settings lookup failed, using env default", "key", key, "err", err)
		return "", false
	}
	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

// Provider resolves the active vendor name: override > env default > twilio.
func (r *Runtime) Provider(ctx context.Context) string {
	if v, ok := r.get(ctx, KeyProvider); ok {
		return strings.ToLower(v)
	}
	if r.calls.Provider != "" {
		return r.calls.Provider
	}
	return "twilio"
}

// GlobalWebhookBase resolves the global callback base URL.
func (r *Runtime) GlobalWebhookBase(ctx context.Context) string {
	if v, ok := r.get(ctx, KeyWebhookBase); ok {
		return strings.TrimRight(v, "/")
	}
	return r.calls.WebhookBase
}

// ProviderWebhookBase resolves the provider-specific callback base, empty
// when neither an override nor an env value is set.
func (r *Runtime) ProviderWebhookBase(ctx context.Context, provider string) string {
	if v, ok := r.get(ctx, ProviderWebhookKey(provider)); ok {
		return strings.TrimRight(v, "/")
	}
	return r.providerBases[provider]
}

// RetryPolicy resolves the retry table and attempt budget.
func (r *Runtime) RetryPolicy(ctx context.Context) retry.Policy {
	p := retry.Policy{MaxAttempts: r.calls.MaxAttempts}
	if v, ok := r.get(ctx, KeyMaxAttempts); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.MaxAttempts = n
		}
	}

	table := r.calls.BackoffMinutes
	if v, ok := r.get(ctx, KeyBackoffMinutes); ok {
		table = v
	}
	backoff, err := retry.ParseBackoff(table)
	if err != nil {
		r.log.Warn("invalid backoff table, using default", "value", table, "err", err)
		backoff = retry.DefaultPolicy().Backoff
	}
	p.Backoff = backoff
	return p
}

func (r *Runtime) LowBalanceThreshold(ctx context.Context) float64 {
	if v, ok := r.get(ctx, KeyLowBalance); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return r.calls.LowBalanceThreshold
}

func (r *Runtime) MaxConcurrentCalls(ctx context.Context) int {
	if v, ok := r.get(ctx, KeyMaxConcurrentCalls); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return r.calls.MaxConcurrentCalls
}

// Simulated reports whether the engine synthesizes calls instead of placing
// real ones. The override allows flipping modes without a restart.
func (r *Runtime) Simulated(ctx context.Context) bool {
	if v, ok := r.get(ctx, KeySimulatedMode); ok {
		return parseBool(v, r.calls.Simulated)
	}
	return r.calls.Simulated
}

func (r *Runtime) TranscriptionEnabled(ctx context.Context) bool {
	if v, ok := r.get(ctx, KeyEnableTranscription); ok {
		return parseBool(v, r.calls.EnableTranscription)
	}
	return r.calls.EnableTranscription
}

func (r *Runtime) CallTimeout() time.Duration { return r.calls.CallTimeout }

func parseBool(v string, def bool) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return def
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env (or an env-file loaded at startup).
// Business logic must not read raw environment variables; runtime overrides
// live in internal/settings.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Calls  CallConfig
	Twilio TwilioConfig
	Telnyx TelnyxConfig
	Plivo  PlivoConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AdminAPIKey    string
	AccessTokenTTL time.Duration
}

// CallConfig carries the engine defaults. Each value may be overridden at
// runtime through internal/settings without a restart.
type CallConfig struct {
	// Provider is the default telephony vendor (twilio, telnyx, plivo).
	Provider string

	// WebhookBase is the global default callback base URL. Provider-specific
	// bases take precedence (see TwilioConfig etc.).
	WebhookBase string

	MaxAttempts    int
	BackoffMinutes string

	CallTimeout time.Duration

	// LowBalanceThreshold triggers a warning; a non-positive balance blocks
	// call initiation in live mode.
	LowBalanceThreshold float64

	MaxConcurrentCalls int

	// Simulated switches every adapter to deterministic synthetic behavior
	// instead of real vendor calls.
	Simulated bool

	EnableTranscription bool
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	FromNumber  string
	WebhookBase string
}

type TelnyxConfig struct {
	APIKey      string
	FromNumber  string
	WebhookBase string
}

type PlivoConfig struct {
	AuthID      string
	AuthToken   string
	FromNumber  string
	WebhookBase string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.AdminAPIKey = os.Getenv("ADMIN_API_KEY")
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")

	c.Calls.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("TELEPHONY_PROVIDER")))
	c.Calls.WebhookBase = strings.TrimRight(strings.TrimSpace(os.Getenv("WEBHOOK_BASE_URL")), "/")
	c.Calls.MaxAttempts = optInt("MAX_RETRY_ATTEMPTS", 2)
	c.Calls.BackoffMinutes = strings.TrimSpace(os.Getenv("RETRY_BACKOFF_MINUTES"))
	if c.Calls.BackoffMinutes == "" {
		c.Calls.BackoffMinutes = "15,120"
	}
	c.Calls.CallTimeout = optDuration("CALL_TIMEOUT")
	if c.Calls.CallTimeout <= 0 {
		c.Calls.CallTimeout = 5 * time.Minute
	}
	c.Calls.LowBalanceThreshold = optFloat("LOW_BALANCE_THRESHOLD", 5.0)
	c.Calls.MaxConcurrentCalls = optInt("MAX_CONCURRENT_CALLS", 1)
	c.Calls.Simulated = optBool("SIMULATED_MODE", true)
	c.Calls.EnableTranscription = optBool("ENABLE_TRANSCRIPTION", true)

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.WebhookBase = strings.TrimRight(strings.TrimSpace(os.Getenv("TWILIO_WEBHOOK_BASE_URL")), "/")

	c.Telnyx.APIKey = os.Getenv("TELNYX_API_KEY")
	c.Telnyx.FromNumber = strings.TrimSpace(os.Getenv("TELNYX_FROM_NUMBER"))
	c.Telnyx.WebhookBase = strings.TrimRight(strings.TrimSpace(os.Getenv("TELNYX_WEBHOOK_BASE_URL")), "/")

	c.Plivo.AuthID = strings.TrimSpace(os.Getenv("PLIVO_AUTH_ID"))
	c.Plivo.AuthToken = os.Getenv("PLIVO_AUTH_TOKEN")
	c.Plivo.FromNumber = strings.TrimSpace(os.Getenv("PLIVO_FROM_NUMBER"))
	c.Plivo.WebhookBase = strings.TrimRight(strings.TrimSpace(os.Getenv("PLIVO_WEBHOOK_BASE_URL")), "/")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	if c.DB.SSLMode == "" && c.IsProduction() {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AdminAPIKey == "" && c.IsProduction() {
		errs = append(errs, errors.New("ADMIN_API_KEY is required in production"))
	}

	if c.Calls.Provider != "" && !isValidProvider(c.Calls.Provider) {
		errs = append(errs, fmt.Errorf("TELEPHONY_PROVIDER must be one of twilio, telnyx, plivo, got %q", c.Calls.Provider))
	}
	if c.Calls.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRY_ATTEMPTS must be > 0, got %d", c.Calls.MaxAttempts))
	}
	if c.Calls.MaxConcurrentCalls <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_CALLS must be > 0, got %d", c.Calls.MaxConcurrentCalls))
	}

	// Live mode may never silently default the callback base; webhooks would
	// be undeliverable and every call would dangle until timeout.
	if !c.Calls.Simulated && c.Calls.WebhookBase == "" {
		errs = append(errs, errors.New("WEBHOOK_BASE_URL is required when SIMULATED_MODE=false"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Contains secrets; never log this string.
	sslMode := c.DB.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		sslMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func optFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func optBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return def
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func isValidProvider(v string) bool {
	switch v {
	case "twilio", "telnyx", "plivo":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}

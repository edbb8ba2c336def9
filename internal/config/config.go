package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPShutdownTimeout time.Duration

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	StripeSecretKey       string
	StripeWebhookSecret   string

	PaymentGateway     string
	PaymentMode        string
	CurrencyCode       string
	GatewayTimeout     time.Duration
	GatewayMaxAttempts int

	SplitStorePct      int
	SplitFreelancerPct int
	SplitPlatformPct   int

	LedgerLockTTL     time.Duration
	WebhookReplayTTL  time.Duration
	WebhookRateLimit  string
	CheckoutRateLimit string
	IdempotencyTTL    time.Duration
	MigrateOnStart    bool

	AdminKeyHash   string
	AdminJWTSecret string

	KafkaBrokers []string
	KafkaTopic   string

	WorkerConcurrency int

	// BusinessTimezone decides where a business day starts for dashboards
	// and slot bookings.
	BusinessTimezone string
	BusinessLocation *time.Location
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		HTTPReadTimeout:     parseDuration(k.String("HTTP_READ_TIMEOUT"), "15s"),
		HTTPWriteTimeout:    parseDuration(k.String("HTTP_WRITE_TIMEOUT"), "30s"),
		HTTPShutdownTimeout: parseDuration(k.String("HTTP_SHUTDOWN_TIMEOUT"), "10s"),

		RazorpayKeyID:         strings.TrimSpace(k.String("RAZORPAY_KEY_ID")),
		RazorpayKeySecret:     strings.TrimSpace(k.String("RAZORPAY_KEY_SECRET")),
		RazorpayWebhookSecret: strings.TrimSpace(k.String("RAZORPAY_WEBHOOK_SECRET")),
		RazorpayBaseURL:       valueOrDefault(k.String("RAZORPAY_BASE_URL"), "https://api.razorpay.com"),
		StripeSecretKey:       strings.TrimSpace(k.String("STRIPE_SECRET_KEY")),
		StripeWebhookSecret:   strings.TrimSpace(k.String("STRIPE_WEBHOOK_SECRET")),

		PaymentGateway:     strings.ToLower(valueOrDefault(k.String("PAYMENT_GATEWAY"), "razorpay")),
		PaymentMode:        strings.ToLower(valueOrDefault(k.String("PAYMENT_MODE"), "sandbox")),
		CurrencyCode:       strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "INR")),
		GatewayTimeout:     parseDuration(k.String("GATEWAY_TIMEOUT"), "10s"),
		GatewayMaxAttempts: parseInt(k.String("GATEWAY_MAX_ATTEMPTS"), 2),

		SplitStorePct:      parseInt(k.String("SPLIT_DEFAULT_STORE_PCT"), 40),
		SplitFreelancerPct: parseInt(k.String("SPLIT_DEFAULT_FREELANCER_PCT"), 40),
		SplitPlatformPct:   parseInt(k.String("SPLIT_DEFAULT_PLATFORM_PCT"), 20),

		LedgerLockTTL:     parseDuration(k.String("LEDGER_LOCK_TTL"), "10s"),
		WebhookReplayTTL:  parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		WebhookRateLimit:  valueOrDefault(k.String("WEBHOOK_RATE_LIMIT"), "600-M"),
		CheckoutRateLimit: valueOrDefault(k.String("CHECKOUT_RATE_LIMIT"), "30-M"),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		MigrateOnStart:    parseBool(k.String("DB_MIGRATE_ON_START"), true),

		AdminKeyHash:   strings.TrimSpace(k.String("ADMIN_KEY_HASH")),
		AdminJWTSecret: strings.TrimSpace(k.String("ADMIN_JWT_SECRET")),

		KafkaBrokers: splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaTopic:   valueOrDefault(k.String("KAFKA_TOPIC"), "escrow-events"),

		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),

		BusinessTimezone: valueOrDefault(k.String("BUSINESS_TIMEZONE"), "UTC"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IsProduction() && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required in production")
	}
	switch c.PaymentGateway {
	case "razorpay", "stripe":
	default:
		return fmt.Errorf("PAYMENT_GATEWAY %q is not supported", c.PaymentGateway)
	}
	switch c.PaymentMode {
	case "sandbox", "live":
	default:
		return fmt.Errorf("PAYMENT_MODE %q is not supported", c.PaymentMode)
	}
	if sum := c.SplitStorePct + c.SplitFreelancerPct + c.SplitPlatformPct; sum != 100 {
		return fmt.Errorf("default split must sum to 100, got %d", sum)
	}
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return fmt.Errorf("BUSINESS_TIMEZONE %q: %w", c.BusinessTimezone, err)
	}
	c.BusinessLocation = loc
	return nil
}

// IsProduction reports whether the service runs with production guarantees.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.AppEnv)) {
	case "production", "prod":
		return true
	default:
		return false
	}
}

// HasRazorpayCredentials reports whether orders can be created against the Razorpay API.
func (c *Config) HasRazorpayCredentials() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}

// HasStripeCredentials reports whether payment intents can be created against the Stripe API.
func (c *Config) HasStripeCredentials() bool {
	return c.StripeSecretKey != ""
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

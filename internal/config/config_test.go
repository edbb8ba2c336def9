package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-escrow/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"APP_ENV":                      "development",
		"DATABASE_URL":                 "",
		"PAYMENT_GATEWAY":              "",
		"PAYMENT_MODE":                 "",
		"GATEWAY_TIMEOUT":              "",
		"SPLIT_DEFAULT_STORE_PCT":      "",
		"SPLIT_DEFAULT_FREELANCER_PCT": "",
		"SPLIT_DEFAULT_PLATFORM_PCT":   "",
	})
	require.NoError(t, err)
	require.Equal(t, "razorpay", cfg.PaymentGateway)
	require.Equal(t, "sandbox", cfg.PaymentMode)
	require.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	require.Equal(t, 40, cfg.SplitStorePct)
	require.Equal(t, 40, cfg.SplitFreelancerPct)
	require.Equal(t, 20, cfg.SplitPlatformPct)
	require.False(t, cfg.IsProduction())
}

func TestLoadRejectsUnbalancedDefaultSplit(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"SPLIT_DEFAULT_STORE_PCT":      "50",
		"SPLIT_DEFAULT_FREELANCER_PCT": "40",
		"SPLIT_DEFAULT_PLATFORM_PCT":   "20",
	})
	require.Error(t, err)
}

func TestLoadRequiresDatabaseInProduction(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"APP_ENV":      "production",
		"DATABASE_URL": "",
	})
	require.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadUnknownGateway(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"PAYMENT_GATEWAY": "paypal"})
	require.Error(t, err)
}

func TestHTTPAddr(t *testing.T) {
	cfg := &config.Config{Port: "9090"}
	require.Equal(t, ":9090", cfg.HTTPAddr())
	cfg.Port = ":7000"
	require.Equal(t, ":7000", cfg.HTTPAddr())
}

func TestCredentialHelpers(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"RAZORPAY_KEY_ID":     "rzp_test_key",
		"RAZORPAY_KEY_SECRET": "shh",
		"STRIPE_SECRET_KEY":   "",
		"KAFKA_BROKERS":       "k1:9092, k2:9092",
	})
	require.NoError(t, err)
	require.True(t, cfg.HasRazorpayCredentials())
	require.False(t, cfg.HasStripeCredentials())
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadRateLimitsAndMigrateFlag(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"WEBHOOK_RATE_LIMIT":  "",
		"CHECKOUT_RATE_LIMIT": "10-S",
		"DB_MIGRATE_ON_START": "false",
	})
	require.NoError(t, err)
	require.Equal(t, "600-M", cfg.WebhookRateLimit)
	require.Equal(t, "10-S", cfg.CheckoutRateLimit)
	require.False(t, cfg.MigrateOnStart)
}

func TestLoadBusinessTimezone(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{"BUSINESS_TIMEZONE": ""})
	require.NoError(t, err)
	require.Equal(t, time.UTC, cfg.BusinessLocation)

	_, err = config.LoadForTests(map[string]string{"BUSINESS_TIMEZONE": "Mars/Olympus_Mons"})
	require.ErrorContains(t, err, "BUSINESS_TIMEZONE")
}

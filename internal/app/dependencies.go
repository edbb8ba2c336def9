package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-escrow/internal/auth"
	"github.com/noah-isme/salon-escrow/internal/booking"
	"github.com/noah-isme/salon-escrow/internal/checkout"
	"github.com/noah-isme/salon-escrow/internal/config"
	"github.com/noah-isme/salon-escrow/internal/dashboard"
	"github.com/noah-isme/salon-escrow/internal/db"
	"github.com/noah-isme/salon-escrow/internal/earnings"
	"github.com/noah-isme/salon-escrow/internal/escrow"
	"github.com/noah-isme/salon-escrow/internal/events"
	"github.com/noah-isme/salon-escrow/internal/gateway"
	"github.com/noah-isme/salon-escrow/internal/jobs"
	"github.com/noah-isme/salon-escrow/internal/lock"
	"github.com/noah-isme/salon-escrow/internal/obs"
	"github.com/noah-isme/salon-escrow/internal/ratelimit"
	"github.com/noah-isme/salon-escrow/internal/split"
	"github.com/noah-isme/salon-escrow/internal/webhook"
)

// TaskQueue is the asynq queue carrying escrow events to cmd/worker.
const TaskQueue = "escrow"

// Options tunes optional integrations.
type Options struct {
	AppName        string
	MetricsEnabled bool
}

// Dependencies holds the services shared by the API. Everything is built
// once in New and injected into handlers; nothing is a package-level
// singleton.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger

	DB    *pgxpool.Pool
	Redis *redis.Client
	Tasks *asynq.Client
	Bus   *events.Bus

	Calc     *split.Calculator
	Split    *split.Service
	Ledger   *escrow.Ledger
	Gateways gateway.Registry
	Checkout *checkout.Service
	Earnings *earnings.Service

	// Activity carries marketplace events (slot bookings, jobs) to the
	// broker only; escrow events go through Bus.
	Activity  *events.Bus
	Bookings  *booking.Service
	Jobs      *jobs.Service
	Dashboard *dashboard.Service

	WebhookLogs webhook.LogStore
	Webhook     *webhook.Handler
	Admin       *auth.AdminGuard

	WebhookLimiter  ratelimit.Limiter
	CheckoutLimiter ratelimit.Limiter

	closers []func() error
}

// New connects the configured backends and wires the domain services. With
// no DATABASE_URL the stores live in memory; with no REDIS_URL locking,
// replay protection and rate limits stay in process and events are applied
// to earnings synchronously.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if opts.AppName == "" {
		opts.AppName = "salon-escrow-api"
	}
	d := &Dependencies{Config: cfg, Logger: logger}

	if err := d.openDatabase(ctx, opts.AppName); err != nil {
		d.Close()
		return nil, err
	}
	if cfg.RedisURL != "" {
		rdb, err := NewRedis(ctx, cfg.RedisURL, opts.MetricsEnabled, logger)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Redis = rdb
		d.closers = append(d.closers, rdb.Close)
	}

	var (
		escrowStore   escrow.Store
		ruleStore     split.RuleStore
		earningsStore earnings.Store
		slotStore     booking.Store
		jobStore      jobs.Store
	)
	if d.DB != nil {
		escrowStore = &escrow.PostgresStore{DB: d.DB}
		ruleStore = &split.PostgresRuleStore{DB: d.DB}
		earningsStore = &earnings.PostgresStore{DB: d.DB}
		slotStore = &booking.PostgresStore{DB: d.DB}
		jobStore = &jobs.PostgresStore{DB: d.DB}
		d.WebhookLogs = &webhook.PostgresLogStore{DB: d.DB}
	} else {
		logger.Warn().Msg("DATABASE_URL not set; using in-memory stores")
		escrowStore = escrow.NewMemoryStore()
		ruleStore = split.NewMemoryRuleStore()
		earningsStore = earnings.NewMemoryStore()
		slotStore = booking.NewMemoryStore()
		jobStore = jobs.NewMemoryStore()
		d.WebhookLogs = &webhook.MemoryLogStore{}
	}

	d.Earnings = &earnings.Service{Store: earningsStore, Logger: obs.Component(logger, "earnings")}
	if err := d.buildBus(); err != nil {
		d.Close()
		return nil, err
	}

	d.Calc = &split.Calculator{
		Rules: ruleStore,
		Fallback: split.Rule{
			StorePct:      cfg.SplitStorePct,
			FreelancerPct: cfg.SplitFreelancerPct,
			PlatformPct:   cfg.SplitPlatformPct,
		},
	}
	d.Split = split.NewService(d.Calc, obs.Component(logger, "split"))

	var distributed lock.Guard
	if d.Redis != nil {
		distributed = lock.Locker{R: d.Redis, Prefix: "lock:", MaxWait: cfg.LedgerLockTTL}
	}
	d.Ledger = escrow.NewLedger(escrowStore, d.Calc, distributed, d.Bus, obs.Component(logger, "ledger"))
	d.Ledger.LockTTL = cfg.LedgerLockTTL

	d.Gateways = NewGateways(cfg, logger)
	d.Checkout = checkout.NewService(d.Ledger, d.Calc, d.Gateways, checkout.Options{
		DefaultGateway:  gateway.Name(cfg.PaymentGateway),
		DefaultMode:     gateway.Mode(cfg.PaymentMode),
		DefaultCurrency: cfg.CurrencyCode,
		GatewayTimeout:  cfg.GatewayTimeout,
	}, obs.Component(logger, "checkout"))

	webhookLogger := obs.Component(logger, "webhook")
	d.Webhook = &webhook.Handler{
		Verifier: gateway.Verifier{
			RazorpaySecret: cfg.RazorpayWebhookSecret,
			StripeSecret:   cfg.StripeWebhookSecret,
		},
		Logs:       d.WebhookLogs,
		Reconciler: &webhook.Reconciler{Ledger: d.Ledger, Logger: webhookLogger},
		ReplayTTL:  cfg.WebhookReplayTTL,
		Logger:     webhookLogger,
	}
	if d.Redis != nil {
		d.Webhook.Replay = webhook.RedisReplayGuard{Client: d.Redis}
	}

	d.Bookings = booking.NewService(slotStore, d.Activity, obs.Component(logger, "booking"))
	d.Bookings.Location = cfg.BusinessLocation
	d.Jobs = jobs.NewService(jobStore, d.Earnings, d.Activity, cfg.CurrencyCode, obs.Component(logger, "jobs"))
	d.Dashboard = &dashboard.Service{
		Earnings: d.Earnings,
		Revenue:  d.Ledger,
		Bookings: d.Bookings,
		Logger:   obs.Component(logger, "dashboard"),
		Location: cfg.BusinessLocation,
	}

	d.Admin = auth.NewAdminGuard(cfg.AdminKeyHash, []byte(cfg.AdminJWTSecret), obs.Component(logger, "admin"))

	if err := d.buildLimiters(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dependencies) openDatabase(ctx context.Context, appName string) error {
	cfg := d.Config
	if cfg.DatabaseURL == "" {
		return nil
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("app: migrate: %w", err)
		}
	}
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := db.Open(connectCtx, cfg.DatabaseURL, appName)
	if err != nil {
		return err
	}
	d.DB = pool
	d.closers = append(d.closers, func() error {
		pool.Close()
		return nil
	})
	return nil
}

func (d *Dependencies) buildBus() error {
	cfg := d.Config
	bus := &events.Bus{}
	activity := &events.Bus{}
	if d.Redis != nil {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("app: asynq redis: %w", err)
		}
		d.Tasks = asynq.NewClient(redisOpt)
		d.closers = append(d.closers, d.Tasks.Close)
		bus.Notifiers = append(bus.Notifiers, events.AsynqNotifier{
			Client:    d.Tasks,
			Queue:     TaskQueue,
			MaxRetry:  10,
			Retention: 24 * time.Hour,
		})
	} else {
		bus.Notifiers = append(bus.Notifiers, earnings.Notifier{Svc: d.Earnings})
	}
	if len(cfg.KafkaBrokers) > 0 {
		writer, err := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		notifier := events.KafkaNotifier{Writer: writer}
		d.closers = append(d.closers, notifier.Close)
		bus.Notifiers = append(bus.Notifiers, notifier)
		activity.Notifiers = append(activity.Notifiers, notifier)
	}
	d.Bus = bus
	d.Activity = activity
	return nil
}

func (d *Dependencies) buildLimiters() error {
	cfg := d.Config
	webhookLimiter, err := ratelimit.NewFixedWindow(cfg.WebhookRateLimit, "rl:webhook", d.Redis)
	if err != nil {
		return err
	}
	d.WebhookLimiter = webhookLimiter
	if d.Redis == nil {
		checkoutLimiter, err := ratelimit.NewFixedWindow(cfg.CheckoutRateLimit, "rl:checkout", nil)
		if err != nil {
			return err
		}
		d.CheckoutLimiter = checkoutLimiter
		return nil
	}
	checkoutLimiter, err := ratelimit.NewSlidingWindow(cfg.CheckoutRateLimit, "rl:checkout:", d.Redis)
	if err != nil {
		return err
	}
	d.CheckoutLimiter = checkoutLimiter
	return nil
}

// Close releases connections in reverse order of acquisition.
func (d *Dependencies) Close() error {
	var joined error
	for i := len(d.closers) - 1; i >= 0; i-- {
		joined = errors.Join(joined, d.closers[i]())
	}
	d.closers = nil
	return joined
}

// NewGateways returns a client per supported gateway. Gateways without
// credentials fall back to the sandbox stub.
func NewGateways(cfg *config.Config, logger zerolog.Logger) gateway.Registry {
	registry := gateway.Registry{
		gateway.Razorpay: gateway.StubClient{Gateway: gateway.Razorpay},
		gateway.Stripe:   gateway.StubClient{Gateway: gateway.Stripe},
	}
	if cfg.HasRazorpayCredentials() {
		registry[gateway.Razorpay] = gateway.NewRazorpayClient(gateway.RazorpayOptions{
			KeyID:       cfg.RazorpayKeyID,
			KeySecret:   cfg.RazorpayKeySecret,
			BaseURL:     cfg.RazorpayBaseURL,
			Timeout:     cfg.GatewayTimeout,
			MaxAttempts: cfg.GatewayMaxAttempts,
		})
	} else {
		logger.Warn().Msg("razorpay credentials missing; using sandbox stub")
	}
	if cfg.HasStripeCredentials() {
		registry[gateway.Stripe] = gateway.NewStripeClient(cfg.StripeSecretKey, nil)
	} else {
		logger.Warn().Msg("stripe credentials missing; using sandbox stub")
	}
	return registry
}

// NewRedis connects to url with tracing (and optionally metrics)
// instrumentation and verifies the connection.
func NewRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-escrow/internal/app"
	"github.com/noah-isme/salon-escrow/internal/booking"
	"github.com/noah-isme/salon-escrow/internal/checkout"
	"github.com/noah-isme/salon-escrow/internal/common"
	"github.com/noah-isme/salon-escrow/internal/config"
	"github.com/noah-isme/salon-escrow/internal/dashboard"
	"github.com/noah-isme/salon-escrow/internal/earnings"
	"github.com/noah-isme/salon-escrow/internal/escrow"
	"github.com/noah-isme/salon-escrow/internal/health"
	"github.com/noah-isme/salon-escrow/internal/jobs"
	"github.com/noah-isme/salon-escrow/internal/obs"
	"github.com/noah-isme/salon-escrow/internal/ratelimit"
	"github.com/noah-isme/salon-escrow/internal/security"
	"github.com/noah-isme/salon-escrow/internal/split"
	"github.com/noah-isme/salon-escrow/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "salon")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "salon-escrow-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.New(ctx, cfg, logger, app.Options{AppName: "salon-escrow-api", MetricsEnabled: metricsEnabled})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     envBool("SECURE_HEADERS_ENABLED", true),
		EnableHSTS: cfg.IsProduction(),
		NoStore:    true,
	}.Middleware)
	r.Use(security.BodyLimit{
		Max:    int64(envInt("HTTP_MAX_BODY_BYTES", 64<<10)),
		Exempt: []string{"/webhooks/", "/.netlify/functions/"},
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Admin-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining"},
		AllowCredentials: len(cfg.CORSAllowedOrigins) > 0,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", !cfg.IsProduction()) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      health.Deps{DB: deps.DB, Redis: deps.Redis},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	mountRoutes(r, deps, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("gateway", cfg.PaymentGateway).Str("mode", cfg.PaymentMode).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		health.SetReady(false)
		logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
		logger.Info().Msg("server stopped")
	}
}

func mountRoutes(r chi.Router, deps *app.Dependencies, logger zerolog.Logger) {
	cfg := deps.Config
	limiterErr := func(name string) func(error) {
		return func(err error) {
			logger.Warn().Err(err).Str("limiter", name).Msg("rate limiter unavailable")
		}
	}
	webhookLimit := ratelimit.Handler{Limiter: deps.WebhookLimiter, Key: ratelimit.ByIP("webhook:"), OnError: limiterErr("webhook")}
	checkoutLimit := ratelimit.Handler{Limiter: deps.CheckoutLimiter, Key: ratelimit.ByIP("checkout:"), OnError: limiterErr("checkout")}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL, Prefix: "idem:checkout"}

	checkoutHandler := &checkout.Handler{Svc: deps.Checkout}
	escrowHandler := &escrow.Handler{Ledger: deps.Ledger}
	earningsHandler := &earnings.Handler{Svc: deps.Earnings}
	splitHandler := &split.Handler{Svc: deps.Split}
	logsHandler := &webhook.LogsHandler{Logs: deps.WebhookLogs}
	bookingHandler := &booking.Handler{Svc: deps.Bookings}
	jobsHandler := &jobs.Handler{Svc: deps.Jobs}
	dashboardHandler := &dashboard.Handler{Svc: deps.Dashboard}

	// Gateways are configured with either path; both accept only POST but
	// other methods must reach the handler to get 405.
	r.With(webhookLimit.Middleware).Handle("/webhooks/payment", deps.Webhook)
	r.With(webhookLimit.Middleware).Handle("/.netlify/functions/webhook", deps.Webhook)

	r.Route("/api/v1", func(v chi.Router) {
		v.With(checkoutLimit.Middleware, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
		v.Get("/escrows/{bookingId}", escrowHandler.Get)
		v.With(deps.Admin.RequireParty("partyId")).Get("/earnings/{partyId}", earningsHandler.List)
		v.With(deps.Admin.Require).Post("/earnings/{earningId}/payout", earningsHandler.Payout)
		v.With(deps.Admin.RequireParty("partyId")).Get("/dashboard/{partyId}", dashboardHandler.Today)

		v.Get("/salons/{salonId}/slots", bookingHandler.Slots)
		v.Route("/customers/{customerId}/bookings", func(c chi.Router) {
			c.Use(deps.Admin.RequireParty("customerId"))
			bookingHandler.Routes(c)
		})

		v.Get("/jobs", jobsHandler.Open)
		v.Route("/stores/{storeId}/jobs", func(st chi.Router) {
			st.Use(deps.Admin.RequireParty("storeId"))
			jobsHandler.StoreRoutes(st)
		})
		v.Route("/freelancers/{freelancerId}/jobs", func(fr chi.Router) {
			fr.Use(deps.Admin.RequireParty("freelancerId"))
			jobsHandler.FreelancerRoutes(fr)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(deps.Admin.Require)
			splitHandler.Routes(admin)
			admin.Get("/webhook-logs", logsHandler.List)
		})
	})
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

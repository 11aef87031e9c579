package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-kasir/internal/app"
	"github.com/noah-isme/backend-kasir/internal/audit"
	"github.com/noah-isme/backend-kasir/internal/backoffice"
	"github.com/noah-isme/backend-kasir/internal/checkout"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/config"
	"github.com/noah-isme/backend-kasir/internal/directory"
	"github.com/noah-isme/backend-kasir/internal/health"
	"github.com/noah-isme/backend-kasir/internal/jobs"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/pos"
	"github.com/noah-isme/backend-kasir/internal/ratelimit"
	"github.com/noah-isme/backend-kasir/internal/security"
	"github.com/noah-isme/backend-kasir/internal/session"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

func main() {
	cfg := config.MustLoad()

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   cfg.ServiceName,
			Environment:   cfg.AppEnv,
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: cfg.TraceSampleRatio,
			Component:     "api",
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

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	deps, err := app.Open(startCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	bo, err := backoffice.New(backoffice.Config{
		BaseURL:      cfg.BackofficeURL,
		APIKey:       cfg.BackofficeAPIKey,
		Timeout:      cfg.BackofficeTimeout,
		MaxAttempts:  cfg.BackofficeMaxAttempts,
		BaseBackoff:  cfg.BackofficeBackoff,
		TenantHeader: cfg.TenantHeader,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("configure backoffice client")
	}
	bo = bo.WithLogger(logger.With().Str("component", "backoffice").Logger())

	dir := &directory.Service{
		Store:  directory.PGStore{Pool: deps.DB},
		Cache:  directory.NewCache(deps.Redis, cfg.DirectoryTTL),
		Logger: &logger,
	}
	sessions := session.NewStore(deps.Redis, cfg.SessionTTL)
	checkoutSvc := &checkout.Service{
		Catalog:  bo,
		TaxRates: dir,
		Sessions: sessions,
		Stock: jobs.Enqueuer{
			Client:   deps.TaskClient,
			Queue:    cfg.QueueName,
			MaxRetry: cfg.QueueMaxRetry,
			Timeout:  cfg.ShopSyncTimeout,
		},
		Logger: &logger,
	}

	posHandler := pos.New(pos.Deps{
		Sessions:  sessions,
		Catalog:   bo,
		Directory: dir,
		Checkout:  checkoutSvc,
		Scan: pos.ScanConfig{
			Debounce:       cfg.ScanDebounce,
			DedupWindow:    cfg.ScanDedupWindow,
			SearchDebounce: cfg.SearchDebounce,
			SearchLimit:    cfg.SearchLimit,
			SwapYZ:         cfg.ScanSwapYZ,
			CacheSize:      cfg.LookupCacheSize,
			CacheTTL:       cfg.LookupCacheTTL,
		},
		Labels:   pos.LabelConfig{Locale: cfg.LabelLocale, DPI: cfg.LabelDPI},
		Validate: deps.Validator,
		Logger:   &logger,
	})

	limiterStore, err := app.NewLimiterStore(deps.Redis)
	if err != nil {
		logger.Error().Err(err).Msg("configure api limiter")
	}
	scanLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: deps.Redis, Prefix: "kasir:rl"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByURLParam("scan", "sessionID"),
			Window: time.Minute,
			Max:    cfg.RateLimitScanPerMinute,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("scan limiter unavailable") },
	}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	journal := &audit.Service{
		Store:        audit.PGStore{Pool: deps.DB},
		Enabled:      cfg.AuditEnabled,
		SamplingRate: cfg.AuditSamplingRate,
	}
	journalRecorder := audit.HTTPRecorder{
		Service: journal,
		OnError: func(err error) { logger.Error().Err(err).Msg("record journal entry") },
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, nil, nil)
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
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", cfg.TenantHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	healthHandler := health.Handler{
		Probes: map[string]health.Probe{
			"db":         func(ctx context.Context) error { return deps.DB.Ping(ctx) },
			"redis":      func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() },
			"backoffice": bo.Ping,
		},
		Optional: map[string]bool{"backoffice": true},
		Timeout:  time.Second,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	resolver := tenant.NewResolver(cfg.TenantHeader, cfg.TenantRoot, cfg.DefaultTenant)
	resolver.Required = true

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(resolver.Middleware)
		if tracingEnabled {
			v.Use(obs.TagTenant)
		}
		// Logged after tenant resolution so entries carry the tenant id.
		v.Use(obs.RequestLogger{Logger: logger}.Middleware)
		v.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production", NoStore: true}.Middleware)
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		v.Use(app.APILimit(limiterStore, cfg.RateLimitAPIPerMinute, logger))
		v.Mount("/pos", posHandler.Routes(pos.Middlewares{
			ScanLimit:   scanLimit.Middleware,
			Idempotency: idem.Middleware,
			Journal:     journalRecorder.Middleware,
			JournalList: audit.Handler{Store: journal.Store}.SessionJournal,
		}))
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("server draining")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/healthfirst-portals/internal/accounts"
	"github.com/wolfman30/healthfirst-portals/internal/api/router"
	"github.com/wolfman30/healthfirst-portals/internal/availability"
	"github.com/wolfman30/healthfirst-portals/internal/compliance"
	appconfig "github.com/wolfman30/healthfirst-portals/internal/config"
	"github.com/wolfman30/healthfirst-portals/internal/events"
	httpmiddleware "github.com/wolfman30/healthfirst-portals/internal/http/middleware"
	"github.com/wolfman30/healthfirst-portals/internal/portal"
	"github.com/wolfman30/healthfirst-portals/internal/registration"
	"github.com/wolfman30/healthfirst-portals/internal/wizard"
	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting healthfirst portals API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() && cfg.TokenSigningSecret == "" {
		logger.Error("TOKEN_SIGNING_SECRET is required in production")
		os.Exit(1)
	}

	metricsHandler, regMetrics := setupMetrics()
	checks := map[string]router.HealthCheck{}

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
		checks["postgres"] = pool.Ping
	}
	auditDB := openAuditDB(cfg.DatabaseURL, logger)
	if auditDB != nil {
		defer func() { _ = auditDB.Close() }()
	}

	store, locker, redisClient := setupSessions(cfg, logger)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	rules := wizard.DefaultRules()
	tokens := accounts.NewTokenIssuer(cfg.TokenSigningSecret, cfg.TokenTTL, cfg.RememberMeTokenTTL)

	acctOpts := []accounts.Option{}
	if cfg.DemoFailureEmail != "" {
		logger.Warn("demo failure email enabled", "email", cfg.DemoFailureEmail)
		acctOpts = append(acctOpts, accounts.WithDemoFailureEmail(cfg.DemoFailureEmail))
	}
	var (
		acctRepo  accounts.Repository     = accounts.NewMemoryRepository()
		slotRepo  availability.Repository = availability.NewMemoryRepository()
		outbox    *events.OutboxStore
		processed *events.ProcessedStore
	)
	if pool != nil {
		acctRepo = accounts.NewPostgresRepository(pool)
		slotRepo = availability.NewPostgresRepository(pool)
		outbox = events.NewOutboxStore(pool)
		processed = events.NewProcessedStore(pool)
		acctOpts = append(acctOpts, accounts.WithPublisher(outbox))
	} else {
		logger.Warn("DATABASE_URL not set; accounts and availability are kept in memory")
	}
	acctSvc := accounts.NewService(acctRepo, tokens, rules, logger, acctOpts...)

	regOpts := []registration.Option{
		registration.WithMetrics(regMetrics),
		registration.WithSessionTTL(cfg.SessionTTL),
		registration.WithSubmitTimeout(cfg.SubmissionTimeout),
	}
	var audit *compliance.AuditService
	if auditDB != nil {
		audit = compliance.NewAuditService(auditDB)
		regOpts = append(regOpts, registration.WithAudit(audit))
	}
	regSvc := registration.NewService(portal.NewRegistry(rules), store, locker, acctSvc, logger, regOpts...)

	if outbox != nil {
		handler, err := setupDelivery(ctx, cfg, processed, logger)
		if err != nil {
			logger.Error("failed to set up event delivery", "error", err)
			os.Exit(1)
		}
		deliverer := events.NewDeliverer(outbox, handler, logger).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxPollInterval)
		go deliverer.Start(ctx)
	}

	loginLimiter := httpmiddleware.NewRateLimiter(cfg.LoginRatePerSecond, cfg.LoginRateBurst)
	defer loginLimiter.Close()

	routerCfg := &router.Config{
		Logger:              logger,
		RegistrationHandler: registration.NewHandler(regSvc, logger, registration.WithLoginPath(cfg.LoginRedirectPath)),
		LoginHandler:        accounts.NewLoginHandler(acctSvc, audit, regMetrics, logger),
		AvailabilityHandler: availability.NewHandler(availability.NewService(slotRepo, logger), logger),
		Tokens:              tokens,
		MetricsHandler:      metricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		LoginLimiter:        loginLimiter,
		HealthChecks:        checks,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(r, "healthfirst-api"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SubmissionTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

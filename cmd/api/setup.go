package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/healthfirst-portals/cmd/mainconfig"
	appconfig "github.com/wolfman30/healthfirst-portals/internal/config"
	"github.com/wolfman30/healthfirst-portals/internal/events"
	"github.com/wolfman30/healthfirst-portals/internal/notify"
	"github.com/wolfman30/healthfirst-portals/internal/observability/metrics"
	"github.com/wolfman30/healthfirst-portals/internal/registration"
	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

func setupMetrics() (http.Handler, *metrics.RegistrationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewRegistrationMetrics(reg)
}

// connectPostgresPool returns nil when no database is configured or reachable.
func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// openAuditDB opens the database/sql handle the audit trail writes through.
func openAuditDB(url string, logger *logging.Logger) *sql.DB {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		logger.Error("failed to open audit database", "error", err)
		return nil
	}
	return db
}

// setupSessions picks the wizard session backend. Without Redis, sessions
// live in process memory and do not survive a restart.
func setupSessions(cfg *appconfig.Config, logger *logging.Logger) (registration.Store, registration.Locker, *redis.Client) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		logger.Warn("REDIS_ADDR not set; wizard sessions are kept in memory")
		return registration.NewMemoryStore(), registration.NewMemoryLocker(), nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	return registration.NewRedisStore(client), registration.NewRedisLocker(client), client
}

// setupDelivery builds the outbox handler: the welcome email, deduplicated
// per event, plus the optional SQS forwarder.
func setupDelivery(ctx context.Context, cfg *appconfig.Config, processed *events.ProcessedStore, logger *logging.Logger) (events.DeliveryHandler, error) {
	var (
		sesClient *sesv2.Client
		sqsClient *sqs.Client
	)
	if mainconfig.NeedsAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		sesClient = sesv2.NewFromConfig(awsCfg)
		sqsClient = sqs.NewFromConfig(awsCfg)
	}

	sender := emailSender(cfg, sesClient, logger)
	loginURL := strings.TrimRight(cfg.PublicBaseURL, "/") + cfg.LoginRedirectPath
	handlers := []events.DeliveryHandler{
		events.Idempotent(processed, notify.WelcomeConsumer, notify.NewService(sender, loginURL, logger)),
	}
	if queueURL := strings.TrimSpace(cfg.AccountEventsQueueURL); queueURL != "" {
		handlers = append(handlers, events.NewSQSForwarder(sqsClient, queueURL))
		logger.Info("forwarding account events to sqs", "queue_url", queueURL)
	}
	return events.FanOut(handlers...), nil
}

func emailSender(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	switch strings.ToLower(cfg.EmailProvider) {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			return s
		}
		logger.Warn("SENDGRID_API_KEY not set; welcome emails are logged only")
	case "ses":
		if s := notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			return s
		}
	}
	return notify.NewStubEmailSender(logger)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/freshhhy/rfq-engine/internal/api"
	"github.com/freshhhy/rfq-engine/internal/broadcast"
	"github.com/freshhhy/rfq-engine/internal/jobs"
	"github.com/freshhhy/rfq-engine/internal/ledger"
	"github.com/freshhhy/rfq-engine/internal/match"
	"github.com/freshhhy/rfq-engine/internal/notify"
	"github.com/freshhhy/rfq-engine/internal/orders"
	"github.com/freshhhy/rfq-engine/internal/outbox"
	"github.com/freshhhy/rfq-engine/internal/payments"
	"github.com/freshhhy/rfq-engine/internal/presence"
	"github.com/freshhhy/rfq-engine/internal/publisher"
	"github.com/freshhhy/rfq-engine/internal/push"
	"github.com/freshhhy/rfq-engine/internal/rate"
	internalsecrets "github.com/freshhhy/rfq-engine/internal/secrets"
	"github.com/freshhhy/rfq-engine/internal/store"
	"github.com/freshhhy/rfq-engine/pkg/clock"
	"github.com/freshhhy/rfq-engine/pkg/config"
	"github.com/freshhhy/rfq-engine/pkg/logger"
	"github.com/freshhhy/rfq-engine/pkg/secrets"
	"github.com/freshhhy/rfq-engine/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [rfq-engine]...")
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	clk := clock.System()

	// --- Database credentials (AWS Secrets Manager outside dev) ---
	dbURL := cfg.DatabaseURL
	stopCleaner := make(chan struct{})
	if cfg.DBSecretName != "" {
		awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		secretCache := secrets.NewCache[map[string]string](15 * time.Minute)
		go secretCache.StartCleaner(5*time.Minute, stopCleaner)

		resolver := internalsecrets.NewResolver(logger.L(), awsProvider, secretCache)
		dbURL, err = resolver.DatabaseURL(ctx, cfg.DatabaseURL, cfg.DBSecretName)
		if err != nil {
			logg.Fatalw("failed to resolve database credentials", "error", err, "secret", cfg.DBSecretName)
		}
	}

	// --- Store (Redis presence + Postgres ledger) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, dbURL, store.PGPoolConfig{}, logger.L())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Publisher (JetStream) ---
	pub, err := publisher.New(nc, cfg.ServiceName, logger.L())
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Broadcast gateway (outbox for post-commit events, direct for presence) ---
	gateway := broadcast.NewGateway(st, pub, clk, logger.L())

	// --- Presence tracker ---
	tracker := presence.NewTracker(st, gateway, clk, cfg.HeartbeatTimeout, logger.L())

	// --- Match engine ---
	engine := match.NewEngine(tracker, st, logger.L())

	// --- Notification queue (RabbitMQ). Degraded mode without it. ---
	var notifier ledger.Notifier
	amqpNotifier, err := notify.New(cfg.AMQPURL, logger.L())
	if err != nil {
		logg.Warnw("notification queue unavailable, continuing without", "error", err)
	} else {
		notifier = amqpNotifier
	}

	// --- Quote ledger ---
	led := ledger.New(st, engine, gateway, notifier, clk, cfg.RFQOpenWindow, cfg.QuoteValidity, logger.L())

	// --- Order conversion (payment authorization optional) ---
	var pay orders.Payments = orders.NopPayments{}
	if cfg.PaymentsURL != "" {
		pay = payments.NewGateway(cfg.PaymentsURL, cfg.PaymentsAPIKey, logger.L())
	}
	converter := orders.NewConverter(st, pay, clk, logger.L())

	// --- Outbox dispatcher ---
	dispatcher := outbox.NewDispatcher(st, pub, clk, cfg.OutboxInterval, cfg.OutboxBatchSize, logger.L())
	go dispatcher.Start(ctx)

	// --- Background sweeps ---
	go jobs.NewPresenceSweeper(tracker, cfg.PresenceSweepInterval, logger.L()).Start(ctx)
	go jobs.NewQuoteExpirySweeper(led, cfg.QuoteSweepInterval, logger.L()).Start(ctx)
	go jobs.NewRFQCloseSweeper(led, cfg.RFQSweepInterval, logger.L()).Start(ctx)
	go jobs.NewSummaryRefresher(logger.L(), st.PG, pub, cfg.SummaryRefreshInterval).Start(ctx)

	// --- WebSocket push hub ---
	hub := push.NewHub(tracker, logger.L())
	go hub.Run(ctx)
	if err := hub.SubscribePush(nc); err != nil {
		logg.Fatalw("failed to subscribe push hub", "error", err)
	}
	go func() {
		logg.Infof("push hub listening on :%d", cfg.PushPort)
		if err := hub.Listen(ctx, fmt.Sprintf(":%d", cfg.PushPort)); err != nil {
			logg.Fatalw("push.listen_failed", "error", err)
		}
	}()

	// --- Fiber HTTP server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	})

	// Heartbeats arrive at most once per second per vendor.
	heartbeatLimits := rate.NewManager(rate.Config{
		RequestsPerSecond: 1,
		Burst:             3,
		Cooldown:          1 * time.Second,
	})

	handler := api.NewHandler(logger.L(), led, converter, tracker, heartbeatLimits)
	api.RegisterRoutes(app, nc, st, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[rfq-engine] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"heartbeat_timeout", cfg.HeartbeatTimeout,
		"rfq_open_window", cfg.RFQOpenWindow,
		"quote_validity", cfg.QuoteValidity)

	<-ctx.Done()
	logg.Info("shutting down [rfq-engine]...")

	close(stopCleaner)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	hub.Close()
	if amqpNotifier != nil {
		amqpNotifier.Close()
	}
	pub.Close()
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}

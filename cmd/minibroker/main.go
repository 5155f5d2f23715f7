package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/efreitasn/minibroker/internal/config"
	"github.com/efreitasn/minibroker/internal/engine"
	"github.com/efreitasn/minibroker/internal/events"
	"github.com/efreitasn/minibroker/internal/handler"
	"github.com/efreitasn/minibroker/internal/metrics"
	"github.com/efreitasn/minibroker/internal/ratelimit"
	"github.com/efreitasn/minibroker/internal/security"
	"github.com/efreitasn/minibroker/internal/seed"
	"github.com/efreitasn/minibroker/internal/service"
	"github.com/efreitasn/minibroker/internal/store"
	"github.com/efreitasn/minibroker/internal/store/postgres"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With(slog.String("service", "minibroker"))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger store: Postgres when configured, in-memory otherwise.
	var ledger store.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.LockTimeout, logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		ledger = pg
		logger.Info("using postgres store")
	} else {
		ledger = store.NewMemory(cfg.LockTimeout)
		logger.Info("using in-memory store")
	}

	m := metrics.New(nil)

	// Event sinks. Webhooks are always on; Kafka only with brokers.
	webhookSvc := service.NewWebhookService(store.NewWebhookStore(), ledger, cfg.WebhookTimeout, logger, m)
	sinks := []engine.EventSink{webhookSvc}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		kafka := events.NewKafkaPublisher(producer, cfg.KafkaTopic, logger, m)
		defer func() {
			if err := kafka.Close(); err != nil {
				logger.Error("kafka close", slog.String("error", err.Error()))
			}
		}()
		sinks = append(sinks, kafka)
		logger.Info("publishing order events to kafka",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic),
		)
	}
	// Drain webhook deliveries before the producer closes.
	defer webhookSvc.Wait()

	manager := engine.NewManager(ledger, engine.Options{
		LockRetries: cfg.LockRetries,
		Events:      service.NewFanoutPublisher(sinks...),
		Metrics:     m,
		Logger:      logger,
	})

	// Login throttling: Redis when configured so limits hold across replicas.
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		limiter = ratelimit.NewRedis(rdb, cfg.LoginRateLimit, cfg.LoginRateWindow, "")
	} else {
		limiter = ratelimit.NewMemory(cfg.LoginRateLimit, cfg.LoginRateWindow)
	}

	services := handler.Services{
		Orders:    service.NewOrderService(manager, ledger),
		Assets:    service.NewAssetService(ledger),
		Customers: service.NewCustomerService(ledger, security.DefaultArgon2Params),
		Auth:      service.NewAuthService(ledger, limiter, cfg.JWTSecret, cfg.JWTTTL, logger),
		Webhooks:  webhookSvc,
	}

	if cfg.SeedDemoData {
		if _, err := seed.Run(ctx, ledger, services.Customers, logger); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	// Expire stale PENDING orders.
	sweeper := engine.NewSweeper(cfg.SweepInterval, cfg.OrderTTL, ledger, manager, logger)
	sweeper.Start(ctx)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(services, m, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown: stop HTTP server, then stop the sweeper and wait for
	// its last tick before the deferred sinks close.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	sweeper.Wait()

	logger.Info("server stopped")
	return nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/intellivoid/coffeehouse-api/internal"
	"github.com/intellivoid/coffeehouse-api/internal/billing"
	"github.com/intellivoid/coffeehouse-api/internal/coffeehouse"
	"github.com/intellivoid/coffeehouse-api/internal/coffeehouse/mock"
	"github.com/intellivoid/coffeehouse-api/internal/coffeehouse/remote"
	"github.com/intellivoid/coffeehouse-api/internal/handler"
	"github.com/intellivoid/coffeehouse-api/internal/keylock"
	"github.com/intellivoid/coffeehouse-api/internal/metrics"
	"github.com/intellivoid/coffeehouse-api/internal/middleware"
	"github.com/intellivoid/coffeehouse-api/internal/repository"
	"github.com/intellivoid/coffeehouse-api/internal/service"
)

// engine is the full surface the handlers need from a backend
type engine interface {
	coffeehouse.Engine
	coffeehouse.Lydia
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repositories
	accessRecords := repository.NewAccessRecords(db)
	generalizations := repository.NewGeneralizations(db)
	lydiaSessions := repository.NewLydiaSessions(db)

	// Billing
	var charger billing.Charger = billing.NoopCharger{}
	if cfg.BillingProvider == "stripe" {
		charger = billing.NewStripeCharger(cfg.StripeSecretKey)
	}
	billingManager := billing.NewManager(db, charger, logger)
	logger.Info("Billing ready", "provider", cfg.BillingProvider)

	// Per-key lock
	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	// Engine
	backend, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	// Initialize services
	validator := service.NewSubscriptionValidator(billingManager, accessRecords, logger, cfg.ExternalCallTimeout)
	quota := service.NewQuotaGate(logger)
	generalizer := service.NewGeneralizer(generalizations, cfg.ExternalCallTimeout)
	sessions := service.NewLydiaSessions(lydiaSessions, cfg.ExternalCallTimeout)

	// Initialize middleware
	isSecure := cfg.Env != "development"
	responder := handler.NewResponder(logger, cfg.Debug)
	accessMw := middleware.NewAccessMiddleware(accessRecords, validator, locker, responder, logger, cfg.LockWait)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
	defer limiter.Close()
	rateLimitMw := middleware.NewRateLimitMiddleware(limiter, responder, logger)

	// Initialize handlers
	meter := handler.NewMeter(quota, accessRecords, cfg.ExternalCallTimeout)
	nlpHandler := handler.NewNLPHandler(backend, meter, generalizer, responder, logger, cfg.ExternalCallTimeout)
	imageHandler := handler.NewImageHandler(backend, meter, responder, logger, cfg.MaxImageBytes, cfg.ExternalCallTimeout)
	lydiaHandler := handler.NewLydiaHandler(backend, sessions, meter, responder, logger, cfg.ExternalCallTimeout)
	usageHandler := handler.NewUsageHandler(meter, responder)
	healthHandler := handler.NewHealthHandler(db, responder)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	healthHandler.RegisterRoutes(mux)

	if !metricsAuth.Enabled() {
		logger.Warn("Metrics endpoint is unprotected, set METRICS_USERNAME and METRICS_PASSWORD")
	}
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	nlpHandler.RegisterRoutes(mux, accessMw.RequireAccess)
	imageHandler.RegisterRoutes(mux, accessMw.RequireAccess)
	lydiaHandler.RegisterRoutes(mux, accessMw.RequireAccess)
	usageHandler.RegisterRoutes(mux, accessMw.RequireAccess)

	mux.HandleFunc("/", responder.NotFound)

	stack := middleware.Stack(
		middleware.RequestID,
		middleware.Recoverer(responder, logger),
		loggingMw.Handler,
		metrics.Middleware,
		securityMw.Handler,
		rateLimitMw.Limit,
	)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           stack(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "engine", cfg.EngineProvider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received, initiating graceful shutdown...")

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newLocker returns the Redis lock when REDIS_URL is set and the
// in-process lock otherwise.
func newLocker(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (keylock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, using in-process access key locks")
		return keylock.NewMemory(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}
	logger.Info("Redis ready", "addr", opts.Addr)

	locker := keylock.NewRedis(client, keylock.RedisConfig{TTL: cfg.LockTTL})
	return locker, func() { client.Close() }, nil
}

func newEngine(cfg *internal.Config, logger *slog.Logger) (engine, error) {
	if cfg.EngineProvider == "mock" {
		logger.Warn("Using mock CoffeeHouse engine")
		return mock.New(logger), nil
	}

	client, err := remote.New(remote.Config{
		BaseURL: cfg.EngineURL,
		APIKey:  cfg.EngineAPIKey,
		ClientConfig: coffeehouse.ClientConfig{
			MaxRetries:     cfg.EngineMaxRetries,
			RetryBaseDelay: cfg.EngineRetryBaseDelay,
			RequestTimeout: cfg.ExternalCallTimeout,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("engine client initialization failed: %w", err)
	}
	logger.Info("Engine ready", "url", cfg.EngineURL)
	return client, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

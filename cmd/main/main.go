package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/cache"
	"github.com/casefunnel/lead-intake/internal/config"
	"github.com/casefunnel/lead-intake/internal/convai"
	"github.com/casefunnel/lead-intake/internal/events"
	"github.com/casefunnel/lead-intake/internal/httpapi"
	"github.com/casefunnel/lead-intake/internal/mailer"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/internal/payments"
	"github.com/casefunnel/lead-intake/internal/ratelimit"
	"github.com/casefunnel/lead-intake/internal/storage"
	"github.com/casefunnel/lead-intake/internal/textgen"
	"github.com/casefunnel/lead-intake/internal/usecase"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting lead intake service",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	conversationRepo := storage.NewConversationRepoAdapter(postgresRepo)
	leadRepo := storage.NewLeadRepoAdapter(postgresRepo)
	matchRepo := storage.NewMatchRepoAdapter(postgresRepo)
	notificationRepo := storage.NewNotificationRepoAdapter(postgresRepo)
	firmRepo := storage.NewFirmRepoAdapter(postgresRepo)
	webhookEventRepo := storage.NewWebhookEventRepoAdapter(postgresRepo)

	// Vendor clients
	convaiClient := convai.NewClient(cfg.ConvAI.BaseURL, cfg.ConvAI.APIKey, cfg.ConvAI.RequestTimeout)
	textgenClient := textgen.NewClient(cfg.TextGen.BaseURL, cfg.TextGen.APIKey, cfg.TextGen.Model, cfg.TextGen.RequestTimeout)
	mailerClient := mailer.NewClient(cfg.Mailer.BaseURL, cfg.Mailer.APIKey, cfg.Mailer.FromAddress, cfg.Mailer.RequestTimeout)

	// Outbound domain events, optional
	publisher := initPublisher(cfg)

	// Notification worker pool
	notifier, err := usecase.NewNotifier(cfg.Notifier, firmRepo, notificationRepo, mailerClient, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize notifier pool", zap.Error(err))
	}

	// Pipeline services
	extractor := usecase.NewExtractor(textgenClient)
	allocator := usecase.NewAllocator(firmRepo, matchRepo, leadRepo, usecase.EligibilityScorer{}, notifier, publisher)
	processedCache := cache.NewProcessedCache(100_000, 0.01)
	intakeService := usecase.NewIntakeService(conversationRepo, leadRepo, convaiClient, extractor, allocator, processedCache, cfg.ConvAI.TranscriptDelay)
	claimService := usecase.NewClaimService(leadRepo, matchRepo, firmRepo, notifier, publisher)
	billingService := usecase.NewBillingService(firmRepo, webhookEventRepo, notifier, publisher, cfg.Payments.DedupWindow)

	// Background expiry sweeps
	sweeper := usecase.NewSweeper(cfg.Sweeper, matchRepo, leadRepo, publisher)
	sweeper.Start()

	// Rate limiting
	store, stopRateLimitStore := initRateLimitStore(cfg)
	publicLimiter := ratelimit.NewLimiter("public", cfg.RateLimit.Public.MaxRequests, cfg.RateLimit.Public.Window, store)
	authenticatedLimiter := ratelimit.NewLimiter("authenticated", cfg.RateLimit.Authenticated.MaxRequests, cfg.RateLimit.Authenticated.Window, store)
	sensitiveLimiter := ratelimit.NewLimiter("sensitive", cfg.RateLimit.Sensitive.MaxRequests, cfg.RateLimit.Sensitive.Window, store)

	// HTTP surface
	verifier := payments.NewVerifier(cfg.Payments.WebhookSecret, cfg.Payments.SignatureMaxAge)
	router := httpapi.NewRouter(cfg, httpapi.RouterDeps{
		Webhook:        httpapi.NewWebhookHandler(intakeService),
		PaymentWebhook: httpapi.NewPaymentWebhookHandler(verifier, billingService),
		Claim:          httpapi.NewClaimHandler(claimService),
		Notifications:  httpapi.NewNotificationHandler(notificationRepo),
		Extract:        httpapi.NewExtractHandler(intakeService),
		Health: httpapi.NewHealthHandler(map[string]httpapi.ReadinessCheck{
			"postgres": func(ctx context.Context) error {
				sqlDB, err := postgresRepo.DB().DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		}),
		PublicLimiter:        publicLimiter,
		AuthenticatedLimiter: authenticatedLimiter,
		SensitiveLimiter:     sensitiveLimiter,
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	utils.SafeGo(func() {
		logger.Log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("HTTP server failed", zap.Error(err))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("Panic in HTTP server goroutine",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
	})

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	var wg sync.WaitGroup
	wg.Add(4)

	// Stop accepting requests first so in-flight pipelines can finish.
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping HTTP server")
		start := time.Now()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping HTTP server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] HTTP server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, shutdownPanicHandler("HTTP server"))

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping sweeper")
		start := time.Now()
		sweeper.Stop()
		logger.Log.Info("[shutdown] Sweeper stopped",
			zap.Duration("duration", time.Since(start)))
	}, shutdownPanicHandler("sweeper"))

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping notifier pool")
		start := time.Now()
		notifier.Stop()
		logger.Log.Info("[shutdown] Notifier pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, shutdownPanicHandler("notifier pool"))

	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		logger.Log.Info("[shutdown] Closing event publisher")
		publisher.Close()

		logger.Log.Info("[shutdown] Stopping rate-limit store")
		stopRateLimitStore()
	}, shutdownPanicHandler("connections"))

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Lead intake service shutdown complete")
}

func shutdownPanicHandler(component string) utils.RecoverFn {
	return func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping "+component,
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
	}
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}

// initPublisher connects the domain-event publisher, or disables it when no
// NATS URL is configured.
func initPublisher(cfg *config.Config) *events.Publisher {
	if cfg.Events.NATSURL == "" {
		logger.Log.Info("Outbound event publishing disabled (no NATS URL configured)")
		return events.NewDisabledPublisher()
	}

	publisher, err := events.NewPublisher(
		cfg.Events.NATSURL,
		cfg.Events.Stream,
		cfg.Events.Subject,
		time.Duration(cfg.Events.MaxAge)*24*time.Hour,
	)
	if err != nil {
		logger.Log.Fatal("Failed to initialize event publisher", zap.Error(err))
	}
	logger.Log.Info("Event publisher connected",
		zap.String("stream", cfg.Events.Stream),
		zap.String("subject", cfg.Events.Subject))
	return publisher
}

// initRateLimitStore picks the rate-limit backend. The returned stop func
// releases whatever the backend holds: the Redis connection, or the memory
// store's janitor goroutine.
func initRateLimitStore(cfg *config.Config) (ratelimit.Store, func()) {
	if cfg.RateLimit.Backend == "redis" && cfg.RateLimit.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
		})
		logger.Log.Info("Rate limiting backed by Redis", zap.String("addr", cfg.RateLimit.RedisAddr))
		return ratelimit.NewRedisStore(client), func() {
			if err := client.Close(); err != nil {
				logger.Log.Error("[shutdown] Failed to close Redis connection", zap.Error(err))
			}
		}
	}

	memStore := ratelimit.NewMemoryStore()
	logger.Log.Info("Rate limiting backed by in-process memory store")
	return memStore, memStore.Stop
}

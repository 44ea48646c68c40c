package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/ads"
	"github.com/DocExplain/DocExplain-app/internal/config"
	"github.com/DocExplain/DocExplain-app/internal/db"
	"github.com/DocExplain/DocExplain-app/internal/drafting"
	"github.com/DocExplain/DocExplain-app/internal/metrics"
	"github.com/DocExplain/DocExplain-app/internal/middleware"
	"github.com/DocExplain/DocExplain-app/internal/orchestrator"
	"github.com/DocExplain/DocExplain-app/internal/prompt"
	"github.com/DocExplain/DocExplain-app/internal/provider"
	"github.com/DocExplain/DocExplain-app/internal/quota"
	"github.com/DocExplain/DocExplain-app/internal/repository"
	"github.com/DocExplain/DocExplain-app/internal/retention"
	"github.com/DocExplain/DocExplain-app/internal/router"
	"github.com/DocExplain/DocExplain-app/internal/services"
	"github.com/DocExplain/DocExplain-app/internal/storage"
	"github.com/DocExplain/DocExplain-app/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)
	m := metrics.New()
	ctx := context.Background()

	// Initialize database
	database, err := db.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	historyRepo := repository.NewHistoryRepository(database)
	quotaRepo := repository.NewQuotaRepository(database)

	var archive storage.Archive
	if cfg.ArchiveEnabled() {
		archive, err = storage.NewS3Archive(ctx, storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			BucketName:      cfg.S3BucketName,
			UseSSL:          cfg.S3UseSSL,
		})
		if err != nil {
			logger.Fatal("Failed to initialize S3 archive", "error", err)
		}
	} else {
		logger.Warn("S3 endpoint not configured, original uploads are not archived")
	}

	// Backends
	gemini, err := provider.NewGemini(ctx, provider.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	})
	if err != nil {
		logger.Fatal("Failed to initialize Gemini", "error", err)
	}
	defer gemini.Close()

	openai := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: cfg.ProviderTimeout,
	}, logger)

	breaker := provider.BreakerConfig{
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerOpenTimeout,
		OnStateChange: func(name, from, to string) {
			logger.Warn("Circuit breaker state changed", "provider", name, "from", from, "to", to)
			m.BreakerChanged(name, from, to)
		},
	}
	policy := orchestrator.NewPolicy(
		provider.WithBreaker(gemini, breaker),
		provider.WithBreaker(openai, breaker),
		orchestrator.Config{Timeout: cfg.ProviderTimeout},
		logger,
		m,
	)
	if !policy.Configured() {
		logger.Warn("No AI provider key configured, analysis and drafting will return 503")
	}

	// Engine
	builder := prompt.NewBuilder()
	gate := quota.NewGate(quotaRepo, quota.Config{
		FreeDailyLimit: cfg.FreeDailyLimit,
		MaxFreeChars:   cfg.MaxFreeChars,
		Location:       cfg.Location(),
	}, m)
	adRegistry := ads.NewRegistry(gate, ads.Config{
		InterstitialCountdown: cfg.InterstitialCountdown,
		RewardCountdown:       cfg.RewardCountdown,
	}, m)
	drafter := services.NewDrafter(policy, builder)
	sessions := drafting.NewSessionStore(drafter, builder.Lexicon, cfg.SessionTTL)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	svc := router.Services{
		Analysis: services.NewAnalysisService(policy, builder, gate, historyRepo, archive, logger),
		Draft:    services.NewDraftService(drafter, sessions, logger),
		Quota:    services.NewQuotaService(gate, adRegistry, cfg.FreeDailyLimit, logger),
	}

	// Maintenance
	scheduler := retention.New(retention.Config{
		Schedule:         cfg.SweepSchedule,
		HistoryRetention: time.Duration(cfg.HistoryRetentionDays) * 24 * time.Hour,
	}, historyRepo, archive, logger)
	scheduler.AddSweeper("draft_sessions", sessions.Sweep)
	scheduler.AddSweeper("ads", adRegistry.Sweep)
	scheduler.AddSweeper("rate_limit_clients", func() int { return limiter.Sweep(time.Hour) })
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start retention scheduler", "error", err)
	}

	// Setup HTTP router
	handler := router.NewRouter(svc, router.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		MaxBodySize:      cfg.MaxBodySize,
		MaxFileSize:      cfg.MaxFileSize,
		RateLimiter:      limiter,
		Metrics:          m,
		EntitlementToken: cfg.EntitlementToken,
	}, logger)

	// Write timeout covers a primary and a fallback attempt.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2*cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "long_context", gemini.Name(), "fast_text", openai.Name())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/azure/brand-visibility-bot/internal/analysis"
	"github.com/azure/brand-visibility-bot/internal/api"
	"github.com/azure/brand-visibility-bot/internal/config"
	"github.com/azure/brand-visibility-bot/internal/content"
	"github.com/azure/brand-visibility-bot/internal/geo"
	"github.com/azure/brand-visibility-bot/internal/notifications"
	"github.com/azure/brand-visibility-bot/internal/providers"
	"github.com/azure/brand-visibility-bot/internal/repository"
	"github.com/azure/brand-visibility-bot/internal/runner"
	"github.com/azure/brand-visibility-bot/internal/scheduler"
	"github.com/azure/brand-visibility-bot/internal/snapshots"
	"github.com/azure/brand-visibility-bot/internal/storage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting Brand Visibility Bot")

	ctx := context.Background()

	// Initialize snapshot storage
	storageClient, err := newStorage(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize record store
	db, err := repository.Open(cfg.DataDir)
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	repo := repository.New(db)
	defer repo.Close()

	// Initialize AI providers
	provider, err := providers.New(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize AI provider: %v", err)
	}
	evaluatorCfg := *cfg
	if cfg.EvaluatorModel != "" {
		evaluatorCfg.AIModel = cfg.EvaluatorModel
	}
	evaluatorProvider, err := providers.New(&evaluatorCfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize evaluator provider: %v", err)
	}

	promptRunner := runner.New(provider, repo, runner.Options{
		MaxConcurrency: cfg.MaxConcurrency,
		RPS:            cfg.ProviderRPS,
		CallTimeout:    cfg.CallTimeout,
		BatchTimeout:   cfg.BatchTimeout,
	})

	geoEngine := geo.NewEngine(
		content.NewFetcher(cfg.FetchTimeout, cfg.UserAgent),
		content.NewLLMEvaluator(evaluatorProvider),
		repo,
	)

	// Initialize notification services
	var notificationService notifications.NotificationInterface
	if cfg.NotificationsEnabled() {
		notificationService = notifications.NewService(cfg)
	}

	// Initialize analysis service
	analysisService := analysis.NewService(cfg, repo, promptRunner, snapshots.NewBlobStore(storageClient), geoEngine, notificationService)

	// Initialize scheduler
	schedulerService := scheduler.NewService(cfg, analysisService)

	// Start scheduler
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()
	logrus.Infof("Next scheduled analysis at %s", schedulerService.Next().Format(time.RFC3339))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.NewHandler(analysisService).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BatchTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.StorageInterface, error) {
	switch cfg.StorageBackend {
	case "azure":
		return storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
	case "memory":
		logrus.Warn("Using in-memory snapshot storage, history is lost on restart")
		return storage.NewMemoryStorage(), nil
	default:
		return storage.NewFileStorage(filepath.Join(cfg.DataDir, "snapshots"))
	}
}

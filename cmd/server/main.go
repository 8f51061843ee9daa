package main

import (
	"context"
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

	"github.com/raahi-app/raahi/internal"
	"github.com/raahi-app/raahi/internal/ai"
	"github.com/raahi-app/raahi/internal/ai/gemini"
	"github.com/raahi-app/raahi/internal/ai/mock"
	"github.com/raahi-app/raahi/internal/ai/roadscan"
	"github.com/raahi-app/raahi/internal/cache"
	"github.com/raahi-app/raahi/internal/domain"
	"github.com/raahi-app/raahi/internal/handler"
	"github.com/raahi-app/raahi/internal/identity"
	"github.com/raahi-app/raahi/internal/middleware"
	"github.com/raahi-app/raahi/internal/repository"
	"github.com/raahi-app/raahi/internal/service"
	"github.com/raahi-app/raahi/internal/storage"
	"github.com/raahi-app/raahi/internal/sweeper"
	"github.com/raahi-app/raahi/internal/uploader"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := repository.Open(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	store := repository.New(db, logger)

	// Initialize object storage
	files, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	// Initialize the view cache. A nil cache is a no-op: every list
	// request falls through to the database.
	var viewCache *cache.Cache
	if cfg.RedisURL != "" {
		viewCache, err = cache.New(cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("cache initialization failed: %w", err)
		}
		defer viewCache.Close()
		logger.Info("View cache ready")
	} else {
		logger.Warn("REDIS_URL not set, view caching disabled")
	}

	// Initialize inference providers
	estimator, detector, err := newAIProviders(cfg, logger)
	if err != nil {
		return fmt.Errorf("ai provider initialization failed: %w", err)
	}

	// Initialize the identity verifier
	verifier, err := newVerifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("identity verifier initialization failed: %w", err)
	}

	// Initialize services
	uploads := uploader.New(files, logger)
	userService := service.NewUserService(store, logger)
	reportService := service.NewReportService(store, uploads, detector, viewCache, logger)

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(verifier, userService, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	metricsMw := middleware.NewMetricsMiddleware()

	// Initialize handlers
	currentUser := func(r *http.Request) *domain.User {
		return middleware.GetUser(r.Context())
	}
	reportHandler := handler.NewReportHandler(reportService, currentUser, logger)
	estimateHandler := handler.NewEstimateHandler(estimator, logger)
	registerHandler := handler.NewRegisterHandler(verifier, userService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics (optionally basic-auth protected)
	var metricsHandler http.Handler = promhttp.Handler()
	if cfg.MetricsUsername != "" || cfg.MetricsPassword != "" {
		metricsHandler = middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword).Handler(metricsHandler)
	} else {
		logger.Warn("Metrics endpoint is unprotected, set METRICS_USERNAME and METRICS_PASSWORD")
	}
	mux.Handle("GET /metrics", metricsHandler)

	// Locally stored images (development)
	if cfg.StorageProvider == storage.ProviderLocal {
		fileFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", fileFS))
	}

	// Middleware stacks
	public := middleware.Stack(loggingMw.Handler, metricsMw.Handler, authMw.WithUser)
	requireUser := middleware.Stack(loggingMw.Handler, metricsMw.Handler, authMw.WithUser, authMw.RequireUser)
	requireAdmin := middleware.Stack(loggingMw.Handler, metricsMw.Handler, authMw.WithUser, authMw.RequireAdmin)

	// Report routes. Submission works with or without a session: reports
	// from unauthenticated callers are stored as anonymous.
	mux.Handle("POST /api/reports", public(http.HandlerFunc(reportHandler.Submit)))
	mux.Handle("GET /api/reports", public(http.HandlerFunc(reportHandler.List)))
	mux.Handle("GET /api/reports/{id}", public(http.HandlerFunc(reportHandler.Get)))
	mux.Handle("GET /api/my/reports", requireUser(http.HandlerFunc(reportHandler.ListMine)))
	mux.Handle("GET /api/admin/reports", requireAdmin(http.HandlerFunc(reportHandler.ListAdmin)))
	mux.Handle("PATCH /api/reports/{id}/status", requireAdmin(http.HandlerFunc(reportHandler.UpdateStatus)))

	// Standalone estimation and registration
	mux.Handle("POST /api/estimate", public(http.HandlerFunc(estimateHandler.Estimate)))
	mux.Handle("POST /api/register", public(http.HandlerFunc(registerHandler.Register)))

	// ==========================================================================
	// Start background sweeper
	// ==========================================================================

	if cfg.SweeperEnabled {
		sw, err := sweeper.New(store, files, sweeper.Config{
			PollInterval:    cfg.SweeperPollInterval,
			MinAge:          cfg.SweeperMinAge,
			BatchSize:       cfg.SweeperBatchSize,
			ShutdownTimeout: 30 * time.Second,
		}, logger)
		if err != nil {
			return fmt.Errorf("sweeper initialization failed: %w", err)
		}
		sw.Start(ctx)
		defer sw.Stop()
	}

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newStorage builds the configured storage backend.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
}

// newAIProviders builds the dimension estimator and crack detector. Either
// may be nil, which disables the corresponding pipeline stage.
func newAIProviders(cfg *internal.Config, logger *slog.Logger) (ai.DimensionEstimator, ai.CrackDetector, error) {
	if cfg.AIProvider == "mock" {
		p := mock.New(logger)
		return p, p, nil
	}

	estimator, err := gemini.New(gemini.Config{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     cfg.AIMaxRetries,
			RetryBaseDelay: cfg.AIRetryBaseDelay,
			RequestTimeout: cfg.AIRequestTimeout,
		},
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	var detector ai.CrackDetector
	if cfg.RoadscanURL != "" {
		detector, err = roadscan.New(roadscan.Config{
			Endpoint: cfg.RoadscanURL,
			Timeout:  cfg.RoadscanTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
	} else {
		logger.Warn("ROADSCAN_URL not set, crack annotation disabled")
	}

	return estimator, detector, nil
}

// newVerifier builds the session verifier. Development without an identity
// provider gets fixed tokens so the authenticated routes stay testable.
func newVerifier(cfg *internal.Config, logger *slog.Logger) (identity.Verifier, error) {
	if cfg.IdentityProviderURL != "" {
		return identity.NewHTTPVerifier(cfg.IdentityProviderURL, logger)
	}

	logger.Warn("IDENTITY_PROVIDER_URL not set, using static development tokens")
	return &identity.StaticVerifier{
		Tokens: map[string]identity.Identity{
			"dev-civilian": {
				ExternalID: "dev-civilian-1",
				Email:      "civilian@raahi.local",
				Name:       "Dev Civilian",
				Role:       domain.RoleCivilian,
			},
			"dev-admin": {
				ExternalID: "dev-admin-1",
				Email:      "admin@raahi.local",
				Name:       "Dev Admin",
				Role:       domain.RoleAdmin,
			},
		},
	}, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

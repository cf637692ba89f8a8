// Package main is the entrypoint for the Tiergate API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tiergate/tiergate/internal/auditlog"
	"github.com/tiergate/tiergate/internal/cache"
	"github.com/tiergate/tiergate/internal/catalog"
	"github.com/tiergate/tiergate/internal/config"
	"github.com/tiergate/tiergate/internal/delivery"
	"github.com/tiergate/tiergate/internal/handler"
	"github.com/tiergate/tiergate/internal/membership"
	"github.com/tiergate/tiergate/internal/metrics"
	"github.com/tiergate/tiergate/internal/middleware"
	"github.com/tiergate/tiergate/internal/model"
	"github.com/tiergate/tiergate/internal/repository"
	"github.com/tiergate/tiergate/internal/server"
	"github.com/tiergate/tiergate/internal/service"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Load the file catalog
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to load catalog",
			slog.String("path", cfg.CatalogPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("catalog loaded",
		"path", cfg.CatalogPath,
		"tiers", cat.TierNames(),
	)

	// Metrics recorder backing the /metrics endpoint
	recorder := metrics.NewInMemory()

	// Membership resolver for the subscription API
	resolver := membership.NewResolver(
		cfg.PatreonAccessToken,
		cfg.PatreonCampaignID,
		logger,
		membership.WithMetrics(recorder),
	)

	// Delivery pipeline through the chat gateway
	courier := delivery.NewHTTPCourier(cfg.CourierGatewayURL, cfg.CourierSigningSecret)
	dispatcher := delivery.NewDispatcher(
		delivery.NewFetcher(),
		courier,
		logger,
		delivery.WithBatchDelay(cfg.DeliveryBatchDelay),
		delivery.WithDispatcherMetrics(recorder),
	)

	// Audit event pipeline
	publisher := auditlog.NewPublisher(cacheClient.Client(), logger, recorder)

	// Initialize services
	adminService := service.NewAdminService(repo, repo, cat, publisher, logger)

	accessOpts := []service.AccessOption{
		service.WithVerifyTimeout(cfg.VerifyTimeout),
		service.WithVerifyRateLimit(cfg.VerifyRateRPM, cfg.VerifyRateBurst),
		service.WithAccessMetrics(recorder),
	}
	if cfg.TrialEnabled() {
		accessOpts = append(accessOpts, service.WithTrialFile(model.FileDescriptor{
			Name:      cfg.TrialFileName,
			SourceURL: cfg.TrialFileURL,
		}))
	}
	accessService := service.NewAccessService(
		repo,
		resolver,
		cacheClient,
		cacheClient,
		cat,
		dispatcher,
		publisher,
		logger,
		accessOpts...,
	)

	// Audit worker forwards events to the operator's log channel.
	// AdminService doubles as the settings source for the destination.
	worker := auditlog.NewWorker(
		cacheClient.Client(),
		courier,
		adminService,
		logger,
		auditlog.NewConsumerID(),
		recorder,
	)

	// Initialize handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	accessHandler := handler.NewAccessHandler(accessService, logger, cfg.TrialEnabled())
	adminHandler := handler.NewAdminHandler(adminService, logger)
	apiKeyHandler := handler.NewAPIKeyHandler(logger, repo)
	metricsHandler := handler.NewMetricsHandler(recorder)

	// Setup router
	r := setupRouter(h, healthHandler, accessHandler, adminHandler, apiKeyHandler, metricsHandler, repo, cacheClient, cfg, logger)

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Start the audit worker; register it for graceful shutdown so
	// in-flight batches drain before the Redis connection closes.
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("audit worker stopped", "error", err)
		}
	}()
	srv.OnShutdown("audit-worker", worker.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"trials_enabled", cfg.TrialEnabled(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	accessHandler *handler.AccessHandler,
	adminHandler *handler.AdminHandler,
	apiKeyHandler *handler.APIKeyHandler,
	metricsHandler *handler.MetricsHandler,
	repo *repository.Repository,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      cfg.IsDevelopment(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	// Root info endpoint
	r.Get("/", h.Hello)

	// Auth middleware configuration
	authCfg := middleware.AuthConfig{
		Logger:     logger,
		Repository: repo,
		Cache:      cacheClient,
	}

	// Rate limit middleware configuration
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:            logger,
		Cache:             cacheClient,
		Enabled:           cfg.RateLimitAPIEnabled,
		RequestsPerMinute: cfg.RateLimitAPIRPM,
		Burst:             cfg.RateLimitAPIBurst,
	}

	// API v1 routes (require authentication)
	r.Route("/api/v1", func(r chi.Router) {
		// Apply auth and rate limit middleware to all API routes
		r.Use(middleware.Auth(authCfg))
		r.Use(middleware.RateLimitAPI(rateLimitCfg))

		// Entitlement resolution and delivery
		r.With(middleware.RequireWrite()).Post("/verify", accessHandler.Verify)
		r.With(middleware.RequireRead()).Get("/status", accessHandler.Status)
		r.With(middleware.RequireRead()).Get("/files", accessHandler.Files)
		r.With(middleware.RequireWrite()).Post("/downloads", accessHandler.Download)
		r.With(middleware.RequireWrite()).Post("/trials", accessHandler.Trial)

		// Operator endpoints (admin scope only)
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())

			r.Post("/grants", adminHandler.Grant)
			r.Post("/temp-access", adminHandler.TempAccess)
			r.Post("/bans", adminHandler.Ban)
			r.Delete("/bans/{user_id}", adminHandler.Unban)
			r.Put("/log-channel", adminHandler.SetLogChannel)

			// API key management
			r.Route("/keys", func(r chi.Router) {
				r.Get("/", apiKeyHandler.ListAPIKeys)
				r.Post("/", apiKeyHandler.CreateAPIKey)
				r.Delete("/{key_id}", apiKeyHandler.RevokeAPIKey)
				r.Post("/{key_id}/rotate", apiKeyHandler.RotateAPIKey)
			})
		})
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}

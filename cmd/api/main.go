package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/signal-screener/internal/api"
	"github.com/mohamedkhairy/signal-screener/internal/config"
	"github.com/mohamedkhairy/signal-screener/internal/pubsub"
	"github.com/mohamedkhairy/signal-screener/internal/ranking"
	"github.com/mohamedkhairy/signal-screener/internal/screener"
	"github.com/mohamedkhairy/signal-screener/internal/storage"
	"github.com/mohamedkhairy/signal-screener/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting screener API service",
		logger.Int("port", cfg.API.Port),
		logger.Int("rate_limit_rps", cfg.API.RateLimitRPS),
		logger.String("ranking_cache", cfg.Screener.RankingCacheType),
	)

	// Initialize signal store
	store, err := storage.NewTimescaleSignalStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize signal store",
			logger.ErrorField(err),
		)
	}
	defer store.Close()

	// Redis backs the shared ranking cache and the update channel. Without
	// the redis cache a connection failure only disables invalidation.
	deps := map[string]api.Pinger{"store": store}
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		if cfg.Screener.RankingCacheType == config.RankingCacheRedis {
			logger.Fatal("Failed to initialize Redis client",
				logger.ErrorField(err),
			)
		}
		logger.Warn("Redis unavailable, ranking cache invalidation disabled",
			logger.ErrorField(err),
		)
		redisClient = nil
	} else {
		defer redisClient.Close()
		deps["redis"] = redisClient
	}

	counts, err := ranking.NewCountCache(cfg.Screener.RankingCacheType, store, redisClient, cfg.Screener.RankingCacheTTL)
	if err != nil {
		logger.Fatal("Failed to initialize ranking cache",
			logger.ErrorField(err),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if redisClient != nil {
		listener := pubsub.NewUpdateListener(redisClient, cfg.Redis.UpdateChannel, func(ctx context.Context, notice pubsub.UpdateNotice) {
			if err := counts.Invalidate(ctx); err != nil {
				logger.Warn("Failed to invalidate ranking cache",
					logger.ErrorField(err),
				)
			}
		})
		if err := listener.Start(ctx); err != nil {
			logger.Warn("Failed to subscribe to signal updates",
				logger.String("channel", cfg.Redis.UpdateChannel),
				logger.ErrorField(err),
			)
		} else {
			defer listener.Stop()
		}
	}

	// Initialize service and handlers
	svc := screener.NewService(store, counts, screener.ConfigFromScreenerConfig(cfg.Screener))
	screenerHandler := api.NewScreenerHandler(svc)
	healthHandler := api.NewHealthHandler(deps)

	// Set up router
	router := mux.NewRouter()

	// API v1 routes
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(mux.MiddlewareFunc(api.MetricsMiddleware()))
	screenerHandler.RegisterRoutes(v1)

	// Health check endpoints
	router.HandleFunc("/health", healthHandler.Health)
	router.HandleFunc("/ready", healthHandler.Ready)
	router.HandleFunc("/live", healthHandler.Live)

	// Metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Apply middleware
	middlewares := api.ChainMiddleware(
		api.CORSMiddleware(cfg.API.AllowedOrigins),
		api.RequestIDMiddleware(),
		api.LoggingMiddleware(),
		api.ErrorHandlingMiddleware(),
		api.RateLimitMiddleware(cfg.API.RateLimitRPS, cfg.API.RateLimitBurst),
	)

	handler := middlewares(router)

	// Start HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: handler,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down screener API service")

	// Shutdown HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	logger.Info("Screener API service stopped")
}

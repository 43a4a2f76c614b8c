package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"flight-arbitrage-api/internal/api"
	"flight-arbitrage-api/internal/config"
	"flight-arbitrage-api/internal/logger"
	"flight-arbitrage-api/internal/platform"
	"flight-arbitrage-api/internal/provider"
	"flight-arbitrage-api/internal/ratelimit"
	"flight-arbitrage-api/internal/rates"
	"flight-arbitrage-api/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Initialize providers and services
	providers := provider.NewFactory(cfg, logger).CreateProviders()
	resolver := rates.NewResolver(cfg, logger)
	legSearch := service.NewLegSearch(cfg, logger, providers, resolver)
	composer := service.NewViaHubComposer(cfg, logger, legSearch)
	orchestrator := service.NewOrchestrator(cfg, logger, legSearch, composer, providers)
	rateLimiter := ratelimit.NewLimiter(cfg, logger)

	// Initialize HTTP handlers
	handlers := api.NewHandlers(api.HandlerConfig{
		Configuration: cfg,
		Logger:        logger,
		Orchestrator:  orchestrator,
		Resolver:      resolver,
		Providers:     providers,
		RateLimiter:   rateLimiter,
	})

	// Setup Gin router
	router := handlers.SetupRoutes()

	// Setup HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Starting arbitrage service on port %s (hub %s)", cfg.Port, cfg.HubAirport)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Create a shutdown context that works across platforms
	shutdownCtx, stop := platform.NewShutdownContext(context.Background())
	defer stop()
	<-shutdownCtx.Done()

	logger.Info("Shutting down server...")

	// Stop rate limiter cleanup
	rateLimiter.Stop()

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

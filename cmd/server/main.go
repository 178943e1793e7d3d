package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"jobpulse/internal/aggregator"
	"jobpulse/internal/alerts"
	"jobpulse/internal/api/routes"
	"jobpulse/internal/config"
	"jobpulse/internal/logging"
	"jobpulse/internal/platform"
	"jobpulse/internal/scheduler"
	"jobpulse/internal/store"
	"jobpulse/pkg/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging
	if err := logging.InitializeLogging(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseLogging()

	logger := logging.GetGlobalLogger()
	logger.Info("Starting JobPulse Analytics Scheduler")

	ctx := context.Background()

	// Durable store: postgres when configured, in-memory otherwise
	var st store.Store
	if cfg.Database.URL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
		pg, err := store.NewPostgresStore(pingCtx, cfg.Database.URL)
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to postgres", map[string]interface{}{
				"error": err.Error(),
			})
		}
		st = pg
		logger.Info("Connected to postgres store")
	} else {
		st = store.NewMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory store; state is lost on restart")
	}
	defer st.Close()

	// Redis cache, best-effort
	var redis *utils.RedisClient
	if cfg.Redis.Enabled {
		redis = utils.NewRedisClient(cfg)
		if err := redis.Ping(ctx); err != nil {
			logger.Warn("Redis unavailable, continuing without cache", map[string]interface{}{
				"error": err.Error(),
			})
			redis = nil
		} else {
			defer redis.Close()
		}
	}

	// Platform services and supporting components
	limiter := platform.NewRateLimiter(cfg)
	defer limiter.Stop()

	registry := platform.NewRegistry(cfg, st, limiter)
	agg := aggregator.New(cfg, st, redis)
	notifier := alerts.NewNotifier(cfg)

	// Scheduler
	sched := scheduler.New(cfg, st, registry, agg, notifier, redis)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// HTTP control surface
	e := echo.New()
	e.HideBanner = true
	routes.SetupRoutes(e, cfg, st, sched, registry, agg, redis)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Drain the scheduler first so in-flight jobs can settle
		sched.Shutdown(shutdownCtx)

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down HTTP server", map[string]interface{}{
				"error": err.Error(),
			})
		}

		logger.Info("Shutdown complete")
	}()

	// Start server
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting", map[string]interface{}{"address": address})

	if err := e.Start(address); err != nil {
		logger.Info("Server stopped", map[string]interface{}{"reason": err.Error()})
	}
}

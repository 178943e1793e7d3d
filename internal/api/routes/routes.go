package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"jobpulse/internal/aggregator"
	"jobpulse/internal/api/handlers"
	"jobpulse/internal/api/middleware"
	"jobpulse/internal/config"
	"jobpulse/internal/platform"
	"jobpulse/internal/scheduler"
	"jobpulse/internal/store"
	"jobpulse/pkg/utils"
)

// SetupRoutes configures all API routes
func SetupRoutes(e *echo.Echo, cfg *config.Config, st store.Store, sched *scheduler.Scheduler, registry *platform.Registry, agg *aggregator.Aggregator, redis *utils.RedisClient) {
	// Global middleware
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(middleware.CORSConfig())
	e.Use(middleware.RequestValidation())
	e.Use(middleware.RateLimitConfig(cfg.Server.RateLimit))
	e.Use(middleware.TimeoutConfig(cfg.Server.ReadTimeout))

	// Health check routes
	health := e.Group("/health")
	{
		health.GET("", handlers.HealthHandler)
		health.GET("/ready", handlers.ReadinessHandler(st, redis))
		health.GET("/live", handlers.LivenessHandler)
		health.GET("/scheduler", handlers.SchedulerHealthHandler(sched))
	}

	// Status route
	e.GET("/status", handlers.StatusHandler(sched))

	// API v1 routes
	v1 := e.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.GET("", handlers.ListJobsHandler(st))
			jobs.GET("/:id", handlers.GetJobHandler(cfg, st))
			jobs.GET("/:id/executions", handlers.ListExecutionsHandler(cfg, st))
			jobs.POST("/:id/trigger", handlers.TriggerJobHandler(sched))
			jobs.POST("/:id/enable", handlers.EnableJobHandler(sched))
			jobs.POST("/:id/disable", handlers.DisableJobHandler(sched))
		}

		analytics := v1.Group("/analytics")
		{
			analytics.GET("/aggregated", handlers.GetAggregatedHandler(agg))
			analytics.POST("/realtime", handlers.RealTimeUpdateHandler(agg))
			analytics.POST("/sync/:userId", handlers.SyncUserHandler(registry))
		}

		platforms := v1.Group("/platforms")
		{
			platforms.POST("/configs", handlers.SavePlatformConfigHandler(registry))
		}

		v1.POST("/referrals", handlers.TrackReferralHandler(st))
	}

	// Root route
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "JobPulse Analytics Scheduler",
			"version": "1.0.0",
			"status":  "running",
		})
	})
}

package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"jobpulse/pkg/models"
)

// RateLimitConfig returns per-client rate limiting middleware backed by
// token buckets keyed on the caller's IP.
func RateLimitConfig(rps float64) echo.MiddlewareFunc {
	if rps <= 0 {
		rps = 20
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(rps),
			Burst:     int(rps) * 2,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, models.ErrorResponse{
				Success:   false,
				Message:   "Unable to identify client",
				Timestamp: time.Now(),
			})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
				Success:   false,
				Message:   "Rate limit exceeded, slow down",
				Timestamp: time.Now(),
			})
		},
	})
}

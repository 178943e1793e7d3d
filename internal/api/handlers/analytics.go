package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"jobpulse/internal/aggregator"
	"jobpulse/internal/platform"
	"jobpulse/internal/store"
	"jobpulse/pkg/models"
	"jobpulse/pkg/utils"
)

func parseDateRange(c echo.Context) (models.DateRange, bool) {
	start, err := time.Parse(time.RFC3339, c.QueryParam("start"))
	if err != nil {
		return models.DateRange{}, false
	}
	end, err := time.Parse(time.RFC3339, c.QueryParam("end"))
	if err != nil || !end.After(start) {
		return models.DateRange{}, false
	}
	return models.DateRange{Start: start, End: end}, true
}

// GetAggregatedHandler returns aggregated rows for a user and period type
func GetAggregatedHandler(agg *aggregator.Aggregator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("user_id")
		if userID == "" {
			return errorJSON(c, http.StatusBadRequest, "user_id is required")
		}

		periodType := models.PeriodType(c.QueryParam("period_type"))
		switch periodType {
		case models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly:
		default:
			return errorJSON(c, http.StatusBadRequest, "period_type must be daily, weekly or monthly")
		}

		dateRange, ok := parseDateRange(c)
		if !ok {
			return errorJSON(c, http.StatusBadRequest, "start and end must be RFC3339 timestamps with end after start")
		}

		records, err := agg.GetAggregatedRecords(c.Request().Context(), userID, periodType, dateRange)
		if err != nil {
			return errorJSON(c, http.StatusInternalServerError, "Failed to load aggregated analytics")
		}

		return c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: records})
	}
}

type realTimeUpdateRequest struct {
	UserID       string  `json:"user_id" validate:"required"`
	PlatformType string  `json:"platform_type" validate:"required"`
	PlatformName string  `json:"platform_name" validate:"required"`
	MetricName   string  `json:"metric_name" validate:"required"`
	Value        float64 `json:"value"`
	JobPostingID string  `json:"job_posting_id"`
}

// RealTimeUpdateHandler adds a single event to today's daily bucket
func RealTimeUpdateHandler(agg *aggregator.Aggregator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req realTimeUpdateRequest
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "Invalid request body")
		}
		if req.UserID == "" || req.PlatformType == "" || req.PlatformName == "" || req.MetricName == "" {
			return errorJSON(c, http.StatusBadRequest, "user_id, platform_type, platform_name and metric_name are required")
		}
		if req.Value < 0 {
			return errorJSON(c, http.StatusBadRequest, "value must not be negative")
		}

		err := agg.UpdateRealTimeAnalytics(c.Request().Context(), req.UserID, req.PlatformType,
			req.PlatformName, req.MetricName, req.Value, req.JobPostingID)
		if err != nil {
			var custom *utils.CustomError
			if errors.As(err, &custom) && custom.Kind == utils.KindValidation {
				return errorJSON(c, http.StatusBadRequest, custom.Message)
			}
			return errorJSON(c, http.StatusInternalServerError, "Failed to update analytics")
		}

		return c.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "Analytics updated"})
	}
}

// SavePlatformConfigHandler validates and persists a platform config
func SavePlatformConfigHandler(registry *platform.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		var cfg models.PlatformConfig
		if err := c.Bind(&cfg); err != nil {
			return errorJSON(c, http.StatusBadRequest, "Invalid request body")
		}

		svc, err := registry.GetService(cfg.PlatformType, cfg.PlatformName)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "Unsupported platform")
		}

		if res := svc.ValidateConfig(&cfg); !res.Success {
			return errorJSON(c, http.StatusBadRequest, res.Error)
		}

		now := time.Now()
		cfg.CreatedAt = now
		cfg.UpdatedAt = now
		if res := svc.SaveConfig(c.Request().Context(), &cfg); !res.Success {
			return errorJSON(c, http.StatusInternalServerError, res.Error)
		}

		return c.JSON(http.StatusCreated, models.APIResponse{Success: true, Message: "Platform config saved"})
	}
}

// SyncUserHandler runs the sync workflow for every active platform of
// one user over the requested range.
func SyncUserHandler(registry *platform.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.Param("userId")
		if userID == "" {
			return errorJSON(c, http.StatusBadRequest, "user id is required")
		}

		dateRange, ok := parseDateRange(c)
		if !ok {
			now := time.Now()
			dateRange = models.DateRange{Start: now.Add(-24 * time.Hour), End: now}
		}

		results, err := registry.SyncAllPlatforms(c.Request().Context(), userID, dateRange)
		if err != nil {
			return errorJSON(c, http.StatusInternalServerError, "Failed to sync platforms")
		}

		return c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: results})
	}
}

// TrackReferralHandler records one referral interaction
func TrackReferralHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var event models.ReferralEvent
		if err := c.Bind(&event); err != nil {
			return errorJSON(c, http.StatusBadRequest, "Invalid request body")
		}
		if event.UserID == "" || event.EventType == "" {
			return errorJSON(c, http.StatusBadRequest, "user_id and event_type are required")
		}

		if event.ID == "" {
			event.ID = utils.GenerateRequestID()
		}
		if event.OccurredAt.IsZero() {
			event.OccurredAt = time.Now()
		}

		if err := st.InsertReferralEvent(c.Request().Context(), &event); err != nil {
			return errorJSON(c, http.StatusInternalServerError, "Failed to record referral event")
		}

		return c.JSON(http.StatusCreated, models.APIResponse{Success: true, Message: "Referral event recorded"})
	}
}

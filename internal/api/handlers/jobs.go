package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"jobpulse/internal/config"
	"jobpulse/internal/logging"
	"jobpulse/internal/scheduler"
	"jobpulse/internal/store"
	"jobpulse/pkg/models"
	"jobpulse/pkg/utils"
)

func requestID(c echo.Context) string {
	if id, ok := c.Get("request_id").(string); ok {
		return id
	}
	return utils.GenerateRequestID()
}

func errorJSON(c echo.Context, code int, message string) error {
	return c.JSON(code, models.ErrorResponse{
		Success:   false,
		Message:   message,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// ListJobsHandler returns every job with its latest execution status
func ListJobsHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		jobs, err := st.ListJobConfigs(ctx)
		if err != nil {
			logging.GetGlobalLogger().Error("Failed to list jobs", map[string]interface{}{
				"request_id": requestID(c),
				"error":      err.Error(),
			})
			return errorJSON(c, http.StatusInternalServerError, "Failed to list jobs")
		}

		listing := make([]models.JobWithStatus, 0, len(jobs))
		for i := range jobs {
			entry := models.JobWithStatus{Job: jobs[i]}
			latest, err := st.LatestJobExecution(ctx, jobs[i].ID)
			if err == nil {
				entry.LatestExecution = latest
			} else if !errors.Is(err, store.ErrNotFound) {
				return errorJSON(c, http.StatusInternalServerError, "Failed to load job status")
			}
			listing = append(listing, entry)
		}

		return c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: listing})
	}
}

// GetJobHandler returns one job together with its execution history
func GetJobHandler(cfg *config.Config, st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		jobID := c.Param("id")

		job, err := st.GetJobConfig(ctx, jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errorJSON(c, http.StatusNotFound, "Job not found")
			}
			return errorJSON(c, http.StatusInternalServerError, "Failed to load job")
		}

		history, err := st.ListJobExecutions(ctx, jobID, cfg.Scheduler.ExecutionHistory)
		if err != nil {
			return errorJSON(c, http.StatusInternalServerError, "Failed to load execution history")
		}

		return c.JSON(http.StatusOK, models.APIResponse{
			Success: true,
			Data: map[string]interface{}{
				"job":        job,
				"executions": history,
			},
		})
	}
}

// ListExecutionsHandler returns a bounded page of execution attempts
func ListExecutionsHandler(cfg *config.Config, st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		jobID := c.Param("id")

		if _, err := st.GetJobConfig(ctx, jobID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errorJSON(c, http.StatusNotFound, "Job not found")
			}
			return errorJSON(c, http.StatusInternalServerError, "Failed to load job")
		}

		limit := cfg.Scheduler.ExecutionHistory
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return errorJSON(c, http.StatusBadRequest, "Invalid limit parameter")
			}
			if n < limit {
				limit = n
			}
		}

		executions, err := st.ListJobExecutions(ctx, jobID, limit)
		if err != nil {
			return errorJSON(c, http.StatusInternalServerError, "Failed to list executions")
		}

		return c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: executions})
	}
}

// TriggerJobHandler starts a manual execution of one job
func TriggerJobHandler(sched *scheduler.Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		jobID := c.Param("id")

		if err := sched.TriggerJob(ctx, jobID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errorJSON(c, http.StatusNotFound, "Job not found")
			}
			var custom *utils.CustomError
			if errors.As(err, &custom) {
				return errorJSON(c, http.StatusConflict, custom.Message)
			}
			return errorJSON(c, http.StatusInternalServerError, "Failed to trigger job")
		}

		return c.JSON(http.StatusAccepted, models.APIResponse{
			Success: true,
			Message: "Job triggered",
		})
	}
}

// EnableJobHandler arms the job's schedule
func EnableJobHandler(sched *scheduler.Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		jobID := c.Param("id")

		if err := sched.EnableJob(ctx, jobID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errorJSON(c, http.StatusNotFound, "Job not found")
			}
			return errorJSON(c, http.StatusInternalServerError, "Failed to enable job")
		}

		return c.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "Job enabled"})
	}
}

// DisableJobHandler tears down the job's schedule
func DisableJobHandler(sched *scheduler.Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		jobID := c.Param("id")

		if err := sched.DisableJob(ctx, jobID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errorJSON(c, http.StatusNotFound, "Job not found")
			}
			return errorJSON(c, http.StatusInternalServerError, "Failed to disable job")
		}

		return c.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "Job disabled"})
	}
}

// SchedulerHealthHandler returns the scheduler health summary
func SchedulerHealthHandler(sched *scheduler.Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		health, err := sched.Health(c.Request().Context())
		if err != nil {
			return errorJSON(c, http.StatusInternalServerError, "Failed to compute scheduler health")
		}
		return c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: health})
	}
}

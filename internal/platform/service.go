package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"jobpulse/internal/logging"
	"jobpulse/internal/store"
	"jobpulse/pkg/models"
	"jobpulse/pkg/utils"
)

// Supported platform bindings
const (
	TypeJobBoard = "job_board"
	TypeReferral = "referral"

	NameLinkedIn = "linkedin"
	NameIndeed   = "indeed"
	NameReferral = "referral"
)

// PlatformService fetches raw analytics for a user and date range from
// one external source. Variants never return an error for expected
// failure modes; they report them through the result envelope.
type PlatformService interface {
	// Initialize opens and validates the external connection
	Initialize(ctx context.Context, cfg *models.PlatformConfig) models.Result

	// FetchAnalytics returns rows normalized from the source's native
	// schema, ordered by recorded_at.
	FetchAnalytics(ctx context.Context, userID string, dateRange models.DateRange) models.FetchResult

	// ValidateConfig structurally validates a config prior to persistence
	ValidateConfig(cfg *models.PlatformConfig) models.Result

	// PlatformType returns the platform type this variant serves
	PlatformType() string

	// PlatformName returns the platform name this variant serves
	PlatformName() string
}

var validPlatformTypes = []string{TypeJobBoard, TypeReferral}
var validPlatformNames = []string{NameLinkedIn, NameIndeed, NameReferral}

func newConfigValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("platform_type", func(fl validator.FieldLevel) bool {
		return utils.Contains(validPlatformTypes, fl.Field().String())
	})
	_ = v.RegisterValidation("platform_name", func(fl validator.FieldLevel) bool {
		return utils.Contains(validPlatformNames, fl.Field().String())
	})
	return v
}

// baseService is the shared persistence core embedded by every variant,
// parameterized by (platform_type, platform_name) so all variants share
// one persistence contract.
type baseService struct {
	platformType string
	platformName string
	store        store.Store
	limiter      *RateLimiter
	validate     *validator.Validate
	logger       logging.Logger
}

func newBaseService(platformType, platformName string, st store.Store, limiter *RateLimiter) baseService {
	return baseService{
		platformType: platformType,
		platformName: platformName,
		store:        st,
		limiter:      limiter,
		validate:     newConfigValidator(),
		logger: logging.GetGlobalLogger().WithFields(map[string]interface{}{
			"component":     "platform_service",
			"platform_type": platformType,
			"platform_name": platformName,
		}),
	}
}

func (b *baseService) PlatformType() string { return b.platformType }
func (b *baseService) PlatformName() string { return b.platformName }

// rateLimitKey scopes the sliding window per platform and user
func (b *baseService) rateLimitKey(userID string) string {
	return fmt.Sprintf("%s:%s:%s", b.platformType, b.platformName, userID)
}

// ValidateConfig rejects malformed configs before they reach the store
func (b *baseService) ValidateConfig(cfg *models.PlatformConfig) models.Result {
	if cfg == nil {
		return models.Fail("platform config is required")
	}
	if cfg.UserID == "" {
		return models.Fail("user_id is required")
	}
	if err := b.validate.Struct(cfg); err != nil {
		return models.Fail(utils.NewValidationError(err.Error()).Message)
	}
	if cfg.PlatformType != b.platformType || cfg.PlatformName != b.platformName {
		return models.Fail(fmt.Sprintf("config does not target %s/%s", b.platformType, b.platformName))
	}
	return models.Ok()
}

// SaveConfig validates and persists a platform configuration
func (b *baseService) SaveConfig(ctx context.Context, cfg *models.PlatformConfig) models.Result {
	if res := b.ValidateConfig(cfg); !res.Success {
		return res
	}
	if cfg.ID == "" {
		cfg.ID = utils.GenerateRequestID()
	}
	if err := b.store.SavePlatformConfig(ctx, cfg); err != nil {
		b.logger.Error("Failed to save platform config", map[string]interface{}{
			"user_id": cfg.UserID,
			"error":   err.Error(),
		})
		return models.Fail("failed to save platform config")
	}
	return models.Ok()
}

// GetConfig loads the user's config for this platform
func (b *baseService) GetConfig(ctx context.Context, userID string) (*models.PlatformConfig, error) {
	return b.store.GetPlatformConfig(ctx, userID, b.platformType, b.platformName)
}

// UpdateLastSync stamps a successful sync on the user's config
func (b *baseService) UpdateLastSync(ctx context.Context, userID string, syncedAt time.Time) error {
	return b.store.UpdateLastSync(ctx, userID, b.platformType, b.platformName, syncedAt)
}

// BeginSyncExecution opens the sync-job record for one user sync
func (b *baseService) BeginSyncExecution(ctx context.Context, userID string) (*models.JobExecution, error) {
	exec := &models.JobExecution{
		ID:        utils.GenerateExecutionID(),
		JobID:     fmt.Sprintf("%s-sync", b.platformName),
		Status:    models.JobStatusRunning,
		StartedAt: time.Now(),
		Result: map[string]interface{}{
			"user_id": userID,
		},
	}
	if err := b.store.CreateJobExecution(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// CloseSyncExecution finalizes the sync-job record as completed or failed
func (b *baseService) CloseSyncExecution(ctx context.Context, exec *models.JobExecution, recordCount int, syncErr error) {
	now := time.Now()
	exec.CompletedAt = &now
	exec.ExecutionTimeMs = now.Sub(exec.StartedAt).Milliseconds()
	if syncErr != nil {
		exec.Status = models.JobStatusFailed
		exec.Error = syncErr.Error()
	} else {
		exec.Status = models.JobStatusCompleted
		exec.Result = utils.MergeMetadata(exec.Result, map[string]interface{}{
			"record_count": recordCount,
		})
	}
	if err := b.store.FinalizeJobExecution(ctx, exec); err != nil {
		b.logger.Error("Failed to finalize sync execution", map[string]interface{}{
			"execution_id": exec.ID,
			"error":        err.Error(),
		})
	}
}

// PersistRawRecords writes fetched rows as raw analytics metrics
func (b *baseService) PersistRawRecords(ctx context.Context, records []models.RawMetricRecord) error {
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = utils.GenerateRequestID()
		}
		records[i].PlatformType = b.platformType
		records[i].PlatformName = b.platformName
	}
	return b.store.InsertRawMetrics(ctx, records)
}

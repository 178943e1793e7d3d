// Package store defines the durable persistence contract shared by the
// scheduler, the platform services and the aggregator, plus its Postgres
// and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"jobpulse/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// ErrFinalized is returned when attempting to finalize an execution row
// that has already been finalized. Execution rows are append-only: one
// row per attempt, never mutated after finalization.
var ErrFinalized = errors.New("execution already finalized")

// Store is the durable storage contract. Collections covered:
// job_configurations, job_executions, platform_configs,
// platform_analytics_raw, platform_analytics_aggregated and
// referral_tracking.
type Store interface {
	// Job configurations
	CreateJobConfig(ctx context.Context, job *models.JobConfig) error
	GetJobConfig(ctx context.Context, id string) (*models.JobConfig, error)
	ListJobConfigs(ctx context.Context) ([]models.JobConfig, error)
	UpdateJobConfig(ctx context.Context, job *models.JobConfig) error

	// Job executions (append-only; one row per attempt)
	CreateJobExecution(ctx context.Context, exec *models.JobExecution) error
	FinalizeJobExecution(ctx context.Context, exec *models.JobExecution) error
	ListJobExecutions(ctx context.Context, jobID string, limit int) ([]models.JobExecution, error)
	LatestJobExecution(ctx context.Context, jobID string) (*models.JobExecution, error)

	// Raw analytics metrics
	InsertRawMetrics(ctx context.Context, records []models.RawMetricRecord) error
	QueryRawMetrics(ctx context.Context, userID string, r models.DateRange) ([]models.RawMetricRecord, error)
	ListUsersWithRawMetrics(ctx context.Context, r models.DateRange) ([]string, error)
	DeleteRawMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Aggregated analytics, keyed by the full period key
	UpsertAggregatedRecord(ctx context.Context, rec *models.AggregatedRecord) error
	GetAggregatedRecord(ctx context.Context, key models.AggregatedKey) (*models.AggregatedRecord, error)
	ListAggregatedRecords(ctx context.Context, userID string, periodType models.PeriodType, r models.DateRange) ([]models.AggregatedRecord, error)

	// Platform configurations
	SavePlatformConfig(ctx context.Context, cfg *models.PlatformConfig) error
	GetPlatformConfig(ctx context.Context, userID, platformType, platformName string) (*models.PlatformConfig, error)
	ListActivePlatformConfigs(ctx context.Context, userID string) ([]models.PlatformConfig, error)
	ListUsersWithActivePlatform(ctx context.Context, platformType, platformName string) ([]string, error)
	UpdateLastSync(ctx context.Context, userID, platformType, platformName string, syncedAt time.Time) error

	// Referral tracking, consumed by the referral platform variant
	QueryReferralEvents(ctx context.Context, userID string, r models.DateRange) ([]models.ReferralEvent, error)
	InsertReferralEvent(ctx context.Context, event *models.ReferralEvent) error

	// Ping verifies connectivity to the backing storage
	Ping(ctx context.Context) error

	// Close releases the underlying resources
	Close()
}

package models

import "time"

// PeriodType represents the aggregation window granularity
type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
)

// AllPeriodTypes lists every supported aggregation granularity
var AllPeriodTypes = []PeriodType{PeriodDaily, PeriodWeekly, PeriodMonthly}

// DateRange represents an inclusive start / exclusive end time window
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// RawMetricRecord is a single raw time-series data point fetched from a
// platform. Immutable once written; the only source of truth for
// aggregation. Purged by the retention job after the configured cutoff.
type RawMetricRecord struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	PlatformType string                 `json:"platform_type"`
	PlatformName string                 `json:"platform_name"`
	JobPostingID string                 `json:"job_posting_id,omitempty"`
	MetricName   string                 `json:"metric_name"`
	MetricValue  float64                `json:"metric_value"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	RecordedAt   time.Time              `json:"recorded_at"`
}

// AggregatedKey is the natural composite key of an aggregated row.
// At most one row exists per key; writes are upserts, never appends.
type AggregatedKey struct {
	UserID       string     `json:"user_id"`
	PlatformType string     `json:"platform_type"`
	PlatformName string     `json:"platform_name"`
	JobPostingID string     `json:"job_posting_id,omitempty"`
	PeriodType   PeriodType `json:"period_type"`
	PeriodStart  time.Time  `json:"period_start"`
}

// AggregatedRecord holds the rolled-up totals for one period bucket
type AggregatedRecord struct {
	Key               AggregatedKey          `json:"key"`
	PeriodEnd         time.Time              `json:"period_end"`
	TotalApplications float64                `json:"total_applications"`
	TotalViews        float64                `json:"total_views"`
	TotalClicks       float64                `json:"total_clicks"`
	ConversionRate    float64                `json:"conversion_rate"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// PlatformConfig holds per-user credentials and settings for one platform
type PlatformConfig struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	PlatformType string                 `json:"platform_type" validate:"required,platform_type"`
	PlatformName string                 `json:"platform_name" validate:"required,platform_name"`
	APIKey       string                 `json:"api_key,omitempty"`
	APIBaseURL   string                 `json:"api_base_url,omitempty" validate:"omitempty,url"`
	Settings     map[string]interface{} `json:"settings,omitempty"`
	IsActive     bool                   `json:"is_active"`
	LastSyncAt   *time.Time             `json:"last_sync_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// ReferralEvent is one tracked referral interaction, consumed by the
// referral platform variant instead of an external API.
type ReferralEvent struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	JobPostingID string    `json:"job_posting_id,omitempty"`
	EventType    string    `json:"event_type"` // view, click, application
	Source       string    `json:"source,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// SyncResult reports the outcome of syncing one platform for one user.
// One entry per platform; a platform failure never aborts the others.
type SyncResult struct {
	PlatformType string `json:"platform_type"`
	PlatformName string `json:"platform_name"`
	UserID       string `json:"user_id"`
	Success      bool   `json:"success"`
	RecordCount  int    `json:"record_count"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

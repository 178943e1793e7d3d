package models

import "time"

// JobStatus represents the lifecycle state of a single job execution
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimeout   JobStatus = "timeout"
)

// JobConfig represents a persisted scheduled job definition
type JobConfig struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Schedule     string     `json:"schedule"` // six-field interval expression
	Enabled      bool       `json:"enabled"`
	PlatformType string     `json:"platform_type,omitempty"`
	PlatformName string     `json:"platform_name,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	TimeoutMs    int64      `json:"timeout_ms"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Timeout returns the execution timeout as a duration
func (j *JobConfig) Timeout() time.Duration {
	if j.TimeoutMs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(j.TimeoutMs) * time.Millisecond
}

// IsSyncJob reports whether the job is bound to a platform
func (j *JobConfig) IsSyncJob() bool {
	return j.PlatformType != "" && j.PlatformName != ""
}

// JobExecution represents one attempt of a job run. Rows are append-only:
// a row is created when the attempt starts and finalized exactly once.
type JobExecution struct {
	ID              string                 `json:"id"`
	JobID           string                 `json:"job_id"`
	Status          JobStatus              `json:"status"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	Error           string                 `json:"error,omitempty"`
	RetryAttempt    int                    `json:"retry_attempt"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	Result          map[string]interface{} `json:"result,omitempty"`
}

// IsFinal reports whether the execution has been finalized
func (e *JobExecution) IsFinal() bool {
	return e.Status != JobStatusRunning
}

// JobWithStatus pairs a job config with its most recent execution for
// the control surface listing.
type JobWithStatus struct {
	Job             JobConfig     `json:"job"`
	LatestExecution *JobExecution `json:"latest_execution,omitempty"`
}

// SchedulerHealth summarizes the scheduler state for the control surface
type SchedulerHealth struct {
	Status        string     `json:"status"` // healthy, warning, error
	TotalJobs     int        `json:"total_jobs"`
	EnabledJobs   int        `json:"enabled_jobs"`
	RunningJobs   int        `json:"running_jobs"`
	JobsInError   int        `json:"jobs_in_error"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
	CheckedAt     time.Time  `json:"checked_at"`
	SchedulerLive bool       `json:"scheduler_live"`
}

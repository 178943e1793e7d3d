package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobpulse/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates and verifies a pgxpool-backed store, and
// ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// ensureSchema creates the collections when they do not exist yet
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS job_configurations (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	schedule      TEXT NOT NULL,
	enabled       BOOLEAN NOT NULL DEFAULT TRUE,
	platform_type TEXT NOT NULL DEFAULT '',
	platform_name TEXT NOT NULL DEFAULT '',
	last_run      TIMESTAMPTZ,
	next_run      TIMESTAMPTZ,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	max_retries   INTEGER NOT NULL DEFAULT 3,
	timeout_ms    BIGINT NOT NULL DEFAULT 300000,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_executions (
	id                TEXT PRIMARY KEY,
	job_id            TEXT NOT NULL,
	status            TEXT NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	completed_at      TIMESTAMPTZ,
	error             TEXT NOT NULL DEFAULT '',
	retry_attempt     INTEGER NOT NULL DEFAULT 0,
	execution_time_ms BIGINT NOT NULL DEFAULT 0,
	result            JSONB
);
CREATE INDEX IF NOT EXISTS idx_job_executions_job_started
	ON job_executions (job_id, started_at DESC);

CREATE TABLE IF NOT EXISTS platform_analytics_raw (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	platform_type  TEXT NOT NULL,
	platform_name  TEXT NOT NULL,
	job_posting_id TEXT NOT NULL DEFAULT '',
	metric_name    TEXT NOT NULL,
	metric_value   DOUBLE PRECISION NOT NULL,
	metadata       JSONB,
	recorded_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analytics_raw_user_recorded
	ON platform_analytics_raw (user_id, recorded_at);

CREATE TABLE IF NOT EXISTS platform_analytics_aggregated (
	user_id            TEXT NOT NULL,
	platform_type      TEXT NOT NULL,
	platform_name      TEXT NOT NULL,
	job_posting_id     TEXT NOT NULL DEFAULT '',
	period_type        TEXT NOT NULL,
	period_start       TIMESTAMPTZ NOT NULL,
	period_end         TIMESTAMPTZ NOT NULL,
	total_applications DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_views        DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_clicks       DOUBLE PRECISION NOT NULL DEFAULT 0,
	conversion_rate    DOUBLE PRECISION NOT NULL DEFAULT 0,
	metadata           JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, platform_type, platform_name, job_posting_id, period_type, period_start)
);

CREATE TABLE IF NOT EXISTS platform_configs (
	id            TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	platform_type TEXT NOT NULL,
	platform_name TEXT NOT NULL,
	api_key       TEXT NOT NULL DEFAULT '',
	api_base_url  TEXT NOT NULL DEFAULT '',
	settings      JSONB,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	last_sync_at  TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, platform_type, platform_name)
);

CREATE TABLE IF NOT EXISTS referral_tracking (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	job_posting_id TEXT NOT NULL DEFAULT '',
	event_type     TEXT NOT NULL,
	source         TEXT NOT NULL DEFAULT '',
	occurred_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_referral_tracking_user_occurred
	ON referral_tracking (user_id, occurred_at);
`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// CreateJobConfig stores a new job configuration
func (s *PostgresStore) CreateJobConfig(ctx context.Context, job *models.JobConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_configurations
			(id, name, schedule, enabled, platform_type, platform_name, last_run, next_run,
			 retry_count, max_retries, timeout_ms, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		job.ID, job.Name, job.Schedule, job.Enabled, job.PlatformType, job.PlatformName,
		job.LastRun, job.NextRun, job.RetryCount, job.MaxRetries, job.TimeoutMs,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("createJobConfig: %w", err)
	}
	return nil
}

const jobConfigColumns = `id, name, schedule, enabled, platform_type, platform_name,
	last_run, next_run, retry_count, max_retries, timeout_ms, created_at, updated_at`

func scanJobConfig(row pgx.Row) (*models.JobConfig, error) {
	var job models.JobConfig
	err := row.Scan(&job.ID, &job.Name, &job.Schedule, &job.Enabled,
		&job.PlatformType, &job.PlatformName, &job.LastRun, &job.NextRun,
		&job.RetryCount, &job.MaxRetries, &job.TimeoutMs, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetJobConfig retrieves a job configuration by id
func (s *PostgresStore) GetJobConfig(ctx context.Context, id string) (*models.JobConfig, error) {
	job, err := scanJobConfig(s.pool.QueryRow(ctx,
		`SELECT `+jobConfigColumns+` FROM job_configurations WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("getJobConfig: %w", err)
	}
	return job, err
}

// ListJobConfigs returns all job configurations ordered by id
func (s *PostgresStore) ListJobConfigs(ctx context.Context) ([]models.JobConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobConfigColumns+` FROM job_configurations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listJobConfigs query: %w", err)
	}
	defer rows.Close()

	jobs := make([]models.JobConfig, 0)
	for rows.Next() {
		job, err := scanJobConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("listJobConfigs scan: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateJobConfig overwrites an existing job configuration
func (s *PostgresStore) UpdateJobConfig(ctx context.Context, job *models.JobConfig) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE job_configurations SET
			name = $2, schedule = $3, enabled = $4, platform_type = $5, platform_name = $6,
			last_run = $7, next_run = $8, retry_count = $9, max_retries = $10,
			timeout_ms = $11, updated_at = now()
		WHERE id = $1`,
		job.ID, job.Name, job.Schedule, job.Enabled, job.PlatformType, job.PlatformName,
		job.LastRun, job.NextRun, job.RetryCount, job.MaxRetries, job.TimeoutMs)
	if err != nil {
		return fmt.Errorf("updateJobConfig: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateJobExecution appends a new execution attempt row
func (s *PostgresStore) CreateJobExecution(ctx context.Context, exec *models.JobExecution) error {
	result, err := marshalJSON(exec.Result)
	if err != nil {
		return fmt.Errorf("createJobExecution marshal: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO job_executions
			(id, job_id, status, started_at, completed_at, error, retry_attempt, execution_time_ms, result)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		exec.ID, exec.JobID, exec.Status, exec.StartedAt, exec.CompletedAt,
		exec.Error, exec.RetryAttempt, exec.ExecutionTimeMs, result)
	if err != nil {
		return fmt.Errorf("createJobExecution: %w", err)
	}
	return nil
}

// FinalizeJobExecution writes the terminal state of an execution row.
// The running-status guard keeps finalized rows immutable.
func (s *PostgresStore) FinalizeJobExecution(ctx context.Context, exec *models.JobExecution) error {
	result, err := marshalJSON(exec.Result)
	if err != nil {
		return fmt.Errorf("finalizeJobExecution marshal: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE job_executions SET
			status = $2, completed_at = $3, error = $4, execution_time_ms = $5, result = $6
		WHERE id = $1 AND status = 'running'`,
		exec.ID, exec.Status, exec.CompletedAt, exec.Error, exec.ExecutionTimeMs, result)
	if err != nil {
		return fmt.Errorf("finalizeJobExecution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFinalized
	}
	return nil
}

const jobExecutionColumns = `id, job_id, status, started_at, completed_at, error,
	retry_attempt, execution_time_ms, result`

func scanJobExecution(row pgx.Row) (*models.JobExecution, error) {
	var exec models.JobExecution
	var result []byte
	err := row.Scan(&exec.ID, &exec.JobID, &exec.Status, &exec.StartedAt,
		&exec.CompletedAt, &exec.Error, &exec.RetryAttempt, &exec.ExecutionTimeMs, &result)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := unmarshalJSON(result, &exec.Result); err != nil {
		return nil, err
	}
	return &exec, nil
}

// ListJobExecutions returns the most recent attempts for a job, newest first
func (s *PostgresStore) ListJobExecutions(ctx context.Context, jobID string, limit int) ([]models.JobExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobExecutionColumns+` FROM job_executions
		 WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("listJobExecutions query: %w", err)
	}
	defer rows.Close()

	execs := make([]models.JobExecution, 0, limit)
	for rows.Next() {
		exec, err := scanJobExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("listJobExecutions scan: %w", err)
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

// LatestJobExecution returns the most recent attempt for a job
func (s *PostgresStore) LatestJobExecution(ctx context.Context, jobID string) (*models.JobExecution, error) {
	exec, err := scanJobExecution(s.pool.QueryRow(ctx,
		`SELECT `+jobExecutionColumns+` FROM job_executions
		 WHERE job_id = $1 ORDER BY started_at DESC LIMIT 1`, jobID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("latestJobExecution: %w", err)
	}
	return exec, err
}

// InsertRawMetrics appends raw metric rows in one batch
func (s *PostgresStore) InsertRawMetrics(ctx context.Context, records []models.RawMetricRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		metadata, err := marshalJSON(rec.Metadata)
		if err != nil {
			return fmt.Errorf("insertRawMetrics marshal: %w", err)
		}
		batch.Queue(`
			INSERT INTO platform_analytics_raw
				(id, user_id, platform_type, platform_name, job_posting_id, metric_name, metric_value, metadata, recorded_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			rec.ID, rec.UserID, rec.PlatformType, rec.PlatformName, rec.JobPostingID,
			rec.MetricName, rec.MetricValue, metadata, rec.RecordedAt)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insertRawMetrics batch: %w", err)
	}
	return nil
}

// QueryRawMetrics returns raw rows for a user within [start, end)
func (s *PostgresStore) QueryRawMetrics(ctx context.Context, userID string, r models.DateRange) ([]models.RawMetricRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, platform_type, platform_name, job_posting_id,
		       metric_name, metric_value, metadata, recorded_at
		FROM platform_analytics_raw
		WHERE user_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at`, userID, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("queryRawMetrics query: %w", err)
	}
	defer rows.Close()

	var records []models.RawMetricRecord
	for rows.Next() {
		var rec models.RawMetricRecord
		var metadata []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.PlatformType, &rec.PlatformName,
			&rec.JobPostingID, &rec.MetricName, &rec.MetricValue, &metadata, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("queryRawMetrics scan: %w", err)
		}
		if err := unmarshalJSON(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("queryRawMetrics metadata: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListUsersWithRawMetrics returns the distinct users with raw rows in range
func (s *PostgresStore) ListUsersWithRawMetrics(ctx context.Context, r models.DateRange) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT user_id FROM platform_analytics_raw
		WHERE recorded_at >= $1 AND recorded_at < $2
		ORDER BY user_id`, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("listUsersWithRawMetrics query: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("listUsersWithRawMetrics scan: %w", err)
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

// DeleteRawMetricsBefore removes raw rows recorded before the cutoff
func (s *PostgresStore) DeleteRawMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM platform_analytics_raw WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleteRawMetricsBefore: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertAggregatedRecord inserts or overwrites the row for the full
// period key so concurrent aggregations of one period converge to a
// single row.
func (s *PostgresStore) UpsertAggregatedRecord(ctx context.Context, rec *models.AggregatedRecord) error {
	metadata, err := marshalJSON(rec.Metadata)
	if err != nil {
		return fmt.Errorf("upsertAggregatedRecord marshal: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO platform_analytics_aggregated
			(user_id, platform_type, platform_name, job_posting_id, period_type, period_start,
			 period_end, total_applications, total_views, total_clicks, conversion_rate,
			 metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now(), now())
		ON CONFLICT (user_id, platform_type, platform_name, job_posting_id, period_type, period_start)
		DO UPDATE SET
			period_end = EXCLUDED.period_end,
			total_applications = EXCLUDED.total_applications,
			total_views = EXCLUDED.total_views,
			total_clicks = EXCLUDED.total_clicks,
			conversion_rate = EXCLUDED.conversion_rate,
			metadata = EXCLUDED.metadata,
			updated_at = now()`,
		rec.Key.UserID, rec.Key.PlatformType, rec.Key.PlatformName, rec.Key.JobPostingID,
		rec.Key.PeriodType, rec.Key.PeriodStart, rec.PeriodEnd,
		rec.TotalApplications, rec.TotalViews, rec.TotalClicks, rec.ConversionRate, metadata)
	if err != nil {
		return fmt.Errorf("upsertAggregatedRecord: %w", err)
	}
	return nil
}

const aggregatedColumns = `user_id, platform_type, platform_name, job_posting_id, period_type,
	period_start, period_end, total_applications, total_views, total_clicks, conversion_rate,
	metadata, created_at, updated_at`

func scanAggregatedRecord(row pgx.Row) (*models.AggregatedRecord, error) {
	var rec models.AggregatedRecord
	var metadata []byte
	err := row.Scan(&rec.Key.UserID, &rec.Key.PlatformType, &rec.Key.PlatformName,
		&rec.Key.JobPostingID, &rec.Key.PeriodType, &rec.Key.PeriodStart, &rec.PeriodEnd,
		&rec.TotalApplications, &rec.TotalViews, &rec.TotalClicks, &rec.ConversionRate,
		&metadata, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := unmarshalJSON(metadata, &rec.Metadata); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetAggregatedRecord retrieves the row for a period key
func (s *PostgresStore) GetAggregatedRecord(ctx context.Context, key models.AggregatedKey) (*models.AggregatedRecord, error) {
	rec, err := scanAggregatedRecord(s.pool.QueryRow(ctx, `
		SELECT `+aggregatedColumns+` FROM platform_analytics_aggregated
		WHERE user_id = $1 AND platform_type = $2 AND platform_name = $3
		  AND job_posting_id = $4 AND period_type = $5 AND period_start = $6`,
		key.UserID, key.PlatformType, key.PlatformName, key.JobPostingID,
		key.PeriodType, key.PeriodStart))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("getAggregatedRecord: %w", err)
	}
	return rec, err
}

// ListAggregatedRecords returns aggregated rows for a user and period type
func (s *PostgresStore) ListAggregatedRecords(ctx context.Context, userID string, periodType models.PeriodType, r models.DateRange) ([]models.AggregatedRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+aggregatedColumns+` FROM platform_analytics_aggregated
		WHERE user_id = $1 AND period_type = $2 AND period_start >= $3 AND period_start < $4
		ORDER BY period_start`, userID, periodType, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("listAggregatedRecords query: %w", err)
	}
	defer rows.Close()

	var records []models.AggregatedRecord
	for rows.Next() {
		rec, err := scanAggregatedRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("listAggregatedRecords scan: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// SavePlatformConfig inserts or overwrites a platform configuration
func (s *PostgresStore) SavePlatformConfig(ctx context.Context, cfg *models.PlatformConfig) error {
	settings, err := marshalJSON(cfg.Settings)
	if err != nil {
		return fmt.Errorf("savePlatformConfig marshal: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO platform_configs
			(id, user_id, platform_type, platform_name, api_key, api_base_url, settings,
			 is_active, last_sync_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), now())
		ON CONFLICT (user_id, platform_type, platform_name)
		DO UPDATE SET
			api_key = EXCLUDED.api_key,
			api_base_url = EXCLUDED.api_base_url,
			settings = EXCLUDED.settings,
			is_active = EXCLUDED.is_active,
			updated_at = now()`,
		cfg.ID, cfg.UserID, cfg.PlatformType, cfg.PlatformName, cfg.APIKey, cfg.APIBaseURL,
		settings, cfg.IsActive, cfg.LastSyncAt)
	if err != nil {
		return fmt.Errorf("savePlatformConfig: %w", err)
	}
	return nil
}

const platformConfigColumns = `id, user_id, platform_type, platform_name, api_key,
	api_base_url, settings, is_active, last_sync_at, created_at, updated_at`

func scanPlatformConfig(row pgx.Row) (*models.PlatformConfig, error) {
	var cfg models.PlatformConfig
	var settings []byte
	err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.PlatformType, &cfg.PlatformName,
		&cfg.APIKey, &cfg.APIBaseURL, &settings, &cfg.IsActive, &cfg.LastSyncAt,
		&cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := unmarshalJSON(settings, &cfg.Settings); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetPlatformConfig retrieves one user's configuration for a platform
func (s *PostgresStore) GetPlatformConfig(ctx context.Context, userID, platformType, platformName string) (*models.PlatformConfig, error) {
	cfg, err := scanPlatformConfig(s.pool.QueryRow(ctx, `
		SELECT `+platformConfigColumns+` FROM platform_configs
		WHERE user_id = $1 AND platform_type = $2 AND platform_name = $3`,
		userID, platformType, platformName))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("getPlatformConfig: %w", err)
	}
	return cfg, err
}

// ListActivePlatformConfigs returns a user's active platform configs
func (s *PostgresStore) ListActivePlatformConfigs(ctx context.Context, userID string) ([]models.PlatformConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+platformConfigColumns+` FROM platform_configs
		WHERE user_id = $1 AND is_active
		ORDER BY platform_type, platform_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("listActivePlatformConfigs query: %w", err)
	}
	defer rows.Close()

	var configs []models.PlatformConfig
	for rows.Next() {
		cfg, err := scanPlatformConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("listActivePlatformConfigs scan: %w", err)
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// ListUsersWithActivePlatform returns users holding an active config for
// the given platform.
func (s *PostgresStore) ListUsersWithActivePlatform(ctx context.Context, platformType, platformName string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM platform_configs
		WHERE platform_type = $1 AND platform_name = $2 AND is_active
		ORDER BY user_id`, platformType, platformName)
	if err != nil {
		return nil, fmt.Errorf("listUsersWithActivePlatform query: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("listUsersWithActivePlatform scan: %w", err)
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

// UpdateLastSync stamps the last successful sync time on a platform config
func (s *PostgresStore) UpdateLastSync(ctx context.Context, userID, platformType, platformName string, syncedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE platform_configs SET last_sync_at = $4, updated_at = now()
		WHERE user_id = $1 AND platform_type = $2 AND platform_name = $3`,
		userID, platformType, platformName, syncedAt)
	if err != nil {
		return fmt.Errorf("updateLastSync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// QueryReferralEvents returns referral events for a user within the range
func (s *PostgresStore) QueryReferralEvents(ctx context.Context, userID string, r models.DateRange) ([]models.ReferralEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, job_posting_id, event_type, source, occurred_at
		FROM referral_tracking
		WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at`, userID, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("queryReferralEvents query: %w", err)
	}
	defer rows.Close()

	var events []models.ReferralEvent
	for rows.Next() {
		var ev models.ReferralEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.JobPostingID, &ev.EventType,
			&ev.Source, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("queryReferralEvents scan: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// InsertReferralEvent appends a referral tracking event
func (s *PostgresStore) InsertReferralEvent(ctx context.Context, event *models.ReferralEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO referral_tracking (id, user_id, job_posting_id, event_type, source, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		event.ID, event.UserID, event.JobPostingID, event.EventType, event.Source, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("insertReferralEvent: %w", err)
	}
	return nil
}

// Ping verifies the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func marshalJSON(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalJSON(data []byte, out *map[string]interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"jobpulse/internal/aggregator"
	"jobpulse/internal/alerts"
	"jobpulse/internal/config"
	"jobpulse/internal/logging"
	"jobpulse/internal/platform"
	"jobpulse/internal/store"
	"jobpulse/pkg/models"
	"jobpulse/pkg/utils"
)

// maxTimerDelay is the largest delay armed on a single timer. Longer
// waits fire at the cap and re-evaluate, an early harmless wake rather
// than a missed run.
const maxTimerDelay = time.Duration(1<<31-1) * time.Millisecond

// maxRetryDelay caps the exponential backoff between retry attempts
const maxRetryDelay = 300000 * time.Millisecond

// Built-in job ids
const (
	JobLinkedInSync       = "linkedin-sync"
	JobIndeedSync         = "indeed-sync"
	JobReferralSync       = "referral-sync"
	JobDailyAggregation   = "daily-aggregation"
	JobWeeklyAggregation  = "weekly-aggregation"
	JobMonthlyAggregation = "monthly-aggregation"
	JobRetentionCleanup   = "retention-cleanup"
)

// Scheduler orchestrates timer-based recurring jobs: it loads configs,
// computes next-run times, arms timers, executes jobs under a timeout
// race, retries with backoff and records execution history. A single
// active instance is assumed; running two against one store
// double-executes jobs.
type Scheduler struct {
	cfg        *config.Config
	store      store.Store
	registry   *platform.Registry
	aggregator *aggregator.Aggregator
	notifier   *alerts.Notifier
	redis      *utils.RedisClient
	logger     logging.Logger

	mu        sync.Mutex
	timers    map[string]*time.Timer
	schedules map[string]Schedule
	running   map[string]bool
	stopped   bool

	wg        sync.WaitGroup
	startedAt time.Time
}

// New creates a scheduler. The redis client is optional.
func New(cfg *config.Config, st store.Store, reg *platform.Registry, agg *aggregator.Aggregator, notifier *alerts.Notifier, redis *utils.RedisClient) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		store:      st,
		registry:   reg,
		aggregator: agg,
		notifier:   notifier,
		redis:      redis,
		logger:     logging.GetGlobalLogger().WithField("component", "scheduler"),
		timers:     make(map[string]*time.Timer),
		schedules:  make(map[string]Schedule),
		running:    make(map[string]bool),
	}
}

// defaultJobs is the fixed set created at bootstrap when missing
func (s *Scheduler) defaultJobs() []models.JobConfig {
	timeout := s.cfg.Scheduler.DefaultTimeout.Milliseconds()
	maxRetries := s.cfg.Scheduler.MaxRetries

	job := func(id, name, schedule, platformType, platformName string) models.JobConfig {
		return models.JobConfig{
			ID:           id,
			Name:         name,
			Schedule:     schedule,
			Enabled:      true,
			PlatformType: platformType,
			PlatformName: platformName,
			MaxRetries:   maxRetries,
			TimeoutMs:    timeout,
		}
	}

	return []models.JobConfig{
		job(JobLinkedInSync, "LinkedIn analytics sync", "0 */15 * * * *", platform.TypeJobBoard, platform.NameLinkedIn),
		job(JobIndeedSync, "Indeed analytics sync", "0 */30 * * * *", platform.TypeJobBoard, platform.NameIndeed),
		job(JobReferralSync, "Referral analytics sync", "0 */30 * * * *", platform.TypeReferral, platform.NameReferral),
		job(JobDailyAggregation, "Daily analytics aggregation", "0 0 2 * * *", "", ""),
		job(JobWeeklyAggregation, "Weekly analytics aggregation", "0 0 3 * * 0", "", ""),
		job(JobMonthlyAggregation, "Monthly analytics aggregation", "0 0 4 1 * *", "", ""),
		job(JobRetentionCleanup, "Raw metrics retention cleanup", "0 0 5 * * *", "", ""),
	}
}

// Start bootstraps the default jobs and arms a timer for every enabled
// job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	if err := s.EnsureDefaultJobs(ctx); err != nil {
		return fmt.Errorf("ensure default jobs: %w", err)
	}

	jobs, err := s.store.ListJobConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list job configs: %w", err)
	}

	armed := 0
	for i := range jobs {
		job := &jobs[i]
		s.mu.Lock()
		s.schedules[job.ID] = ParseSchedule(job.Schedule)
		s.mu.Unlock()

		if !job.Enabled {
			continue
		}
		if err := s.scheduleJob(ctx, job); err != nil {
			s.logger.Error("Failed to schedule job", map[string]interface{}{
				"job_id": job.ID,
				"error":  err.Error(),
			})
			continue
		}
		armed++
	}

	s.logger.Info("Scheduler started", map[string]interface{}{
		"total_jobs": len(jobs),
		"armed":      armed,
	})
	return nil
}

// EnsureDefaultJobs creates any missing built-in job configuration
func (s *Scheduler) EnsureDefaultJobs(ctx context.Context) error {
	now := time.Now()
	for _, job := range s.defaultJobs() {
		_, err := s.store.GetJobConfig(ctx, job.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		next := ParseSchedule(job.Schedule).NextRun(now)
		job.NextRun = &next
		job.CreatedAt = now
		job.UpdatedAt = now
		if err := s.store.CreateJobConfig(ctx, &job); err != nil {
			return err
		}
		s.logger.Info("Created default job", map[string]interface{}{
			"job_id":   job.ID,
			"schedule": job.Schedule,
			"next_run": next,
		})
	}
	return nil
}

// scheduleJob computes and persists the next run, then arms the timer
func (s *Scheduler) scheduleJob(ctx context.Context, job *models.JobConfig) error {
	sched := s.scheduleFor(job)
	next := sched.NextRun(time.Now())
	job.NextRun = &next
	job.UpdatedAt = time.Now()
	if err := s.store.UpdateJobConfig(ctx, job); err != nil {
		return err
	}

	s.armTimer(job.ID, next)
	return nil
}

func (s *Scheduler) scheduleFor(job *models.JobConfig) Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[job.ID]
	if !ok {
		sched = ParseSchedule(job.Schedule)
		s.schedules[job.ID] = sched
	}
	return sched
}

// armTimer arms the single timer for a job, replacing any armed one so
// a job never holds more than one in-flight timer.
func (s *Scheduler) armTimer(jobID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if t, ok := s.timers[jobID]; ok {
		t.Stop()
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	if delay > maxTimerDelay {
		delay = maxTimerDelay
	}

	s.timers[jobID] = time.AfterFunc(delay, func() {
		s.onTimerFire(jobID)
	})

	s.logger.Debug("Timer armed", map[string]interface{}{
		"job_id": jobID,
		"at":     at,
	})
}

// onTimerFire re-validates the job before running. A wake before the
// persisted next-run is the clamped-delay case and simply re-arms.
func (s *Scheduler) onTimerFire(jobID string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, jobID)
	s.mu.Unlock()

	ctx := context.Background()
	job, err := s.store.GetJobConfig(ctx, jobID)
	if err != nil {
		s.logger.Error("Failed to load job for timer fire", map[string]interface{}{
			"job_id": jobID,
			"error":  err.Error(),
		})
		return
	}
	if !job.Enabled {
		return
	}

	if job.NextRun != nil && job.NextRun.After(time.Now()) {
		s.armTimer(jobID, *job.NextRun)
		return
	}

	s.runJob(jobID)
}

// runJob executes the full settle cycle for one job: the attempt plus
// any retries it schedules, then the reschedule. At most one cycle per
// job id runs at a time.
func (s *Scheduler) runJob(jobID string) {
	s.mu.Lock()
	if s.stopped || s.running[jobID] {
		s.mu.Unlock()
		return
	}
	s.running[jobID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, jobID)
			s.mu.Unlock()
		}()
		s.runCycle(context.Background(), jobID)
	}()
}

// runCycle drives attempts and backoff until the job settles, then
// reschedules. A panic in job logic becomes a failed execution, never a
// scheduler crash.
func (s *Scheduler) runCycle(ctx context.Context, jobID string) {
	for {
		job, err := s.store.GetJobConfig(ctx, jobID)
		if err != nil {
			s.logger.Error("Failed to load job config", map[string]interface{}{
				"job_id": jobID,
				"error":  err.Error(),
			})
			return
		}

		execErr := s.executeJob(ctx, job)

		// Reload before persisting: an enable or disable issued while the
		// execution was in flight must not be clobbered by this cycle's
		// bookkeeping.
		job, err = s.store.GetJobConfig(ctx, jobID)
		if err != nil {
			s.logger.Error("Failed to reload job config after execution", map[string]interface{}{
				"job_id": jobID,
				"error":  err.Error(),
			})
			return
		}

		if execErr == nil {
			now := time.Now()
			job.LastRun = &now
			job.RetryCount = 0
			job.UpdatedAt = now
			if err := s.store.UpdateJobConfig(ctx, job); err != nil {
				s.logger.Error("Failed to persist job success", map[string]interface{}{
					"job_id": jobID,
					"error":  err.Error(),
				})
			}
			if job.Enabled {
				if err := s.scheduleJob(ctx, job); err != nil {
					s.logger.Error("Failed to reschedule job", map[string]interface{}{
						"job_id": jobID,
						"error":  err.Error(),
					})
				}
			}
			return
		}

		job.RetryCount++
		job.UpdatedAt = time.Now()

		if job.RetryCount > job.MaxRetries {
			// Terminal until a manual trigger
			job.NextRun = nil
			if err := s.store.UpdateJobConfig(ctx, job); err != nil {
				s.logger.Error("Failed to persist terminal job state", map[string]interface{}{
					"job_id": jobID,
					"error":  err.Error(),
				})
			}
			permErr := utils.NewPermanentFailure(execErr.Error())
			s.logger.Error("Job failed permanently, awaiting manual trigger", map[string]interface{}{
				"job_id":      jobID,
				"retry_count": job.RetryCount,
				"error":       permErr.Error(),
			})
			s.notifier.SendPermanentFailure(ctx, jobID, permErr.Error(), job.RetryCount-1)
			return
		}

		if err := s.store.UpdateJobConfig(ctx, job); err != nil {
			s.logger.Error("Failed to persist retry count", map[string]interface{}{
				"job_id": jobID,
				"error":  err.Error(),
			})
		}

		if !job.Enabled {
			s.logger.Warn("Job disabled during execution, stopping retries", map[string]interface{}{
				"job_id":      jobID,
				"retry_count": job.RetryCount,
			})
			return
		}

		delay := RetryDelay(job.RetryCount)
		logAttempt := s.logger.Warn
		if utils.IsConfiguration(execErr) {
			// a misconfigured job will not heal on its own
			logAttempt = s.logger.Error
		}
		logAttempt("Job attempt failed, retrying", map[string]interface{}{
			"job_id":      jobID,
			"retry_count": job.RetryCount,
			"delay_ms":    delay.Milliseconds(),
			"error":       execErr.Error(),
		})
		time.Sleep(delay)
	}
}

// RetryDelay derives the backoff for a retry attempt:
// min(1000 * 2^retryCount, 300000) ms.
func RetryDelay(retryCount int) time.Duration {
	if retryCount > 8 {
		return maxRetryDelay
	}
	delay := time.Duration(1000<<uint(retryCount)) * time.Millisecond
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

type attemptOutcome struct {
	result map[string]interface{}
	err    error
}

// executeJob records one execution attempt and races the job's logic
// against its timeout. First to settle wins; the loser's work is
// abandoned, not cancelled, so job logic keeps its writes idempotent.
func (s *Scheduler) executeJob(ctx context.Context, job *models.JobConfig) error {
	exec := &models.JobExecution{
		ID:           utils.GenerateExecutionID(),
		JobID:        job.ID,
		Status:       models.JobStatusRunning,
		StartedAt:    time.Now(),
		RetryAttempt: job.RetryCount,
	}
	if err := s.store.CreateJobExecution(ctx, exec); err != nil {
		return fmt.Errorf("create execution record: %w", err)
	}

	outcomeCh := make(chan attemptOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcomeCh <- attemptOutcome{err: fmt.Errorf("job logic panicked: %v", r)}
			}
		}()
		result, err := s.dispatch(ctx, job)
		outcomeCh <- attemptOutcome{result: result, err: err}
	}()

	var status models.JobStatus
	var execErr error
	select {
	case outcome := <-outcomeCh:
		if outcome.err != nil {
			status = models.JobStatusFailed
			execErr = outcome.err
		} else {
			status = models.JobStatusCompleted
			exec.Result = outcome.result
		}
	case <-time.After(job.Timeout()):
		status = models.JobStatusTimeout
		execErr = utils.NewTimeoutError(fmt.Sprintf("job exceeded timeout of %s", job.Timeout()))
	}

	now := time.Now()
	exec.Status = status
	exec.CompletedAt = &now
	exec.ExecutionTimeMs = now.Sub(exec.StartedAt).Milliseconds()
	if execErr != nil {
		exec.Error = execErr.Error()
	}
	if err := s.store.FinalizeJobExecution(ctx, exec); err != nil {
		s.logger.Error("Failed to finalize execution", map[string]interface{}{
			"execution_id": exec.ID,
			"error":        err.Error(),
		})
	}

	s.logger.Info("Job execution settled", map[string]interface{}{
		"job_id":            job.ID,
		"execution_id":      exec.ID,
		"status":            string(status),
		"execution_time_ms": exec.ExecutionTimeMs,
	})
	return execErr
}

// dispatch routes a built-in job id to its logic
func (s *Scheduler) dispatch(ctx context.Context, job *models.JobConfig) (map[string]interface{}, error) {
	now := time.Now()

	if job.IsSyncJob() {
		return s.runSync(ctx, job, models.DateRange{Start: now.Add(-24 * time.Hour), End: now})
	}

	switch job.ID {
	case JobDailyAggregation:
		start, _ := aggregator.BucketRange(models.PeriodDaily, now)
		return s.runAggregation(ctx, models.DateRange{Start: start.AddDate(0, 0, -1), End: start})
	case JobWeeklyAggregation:
		start, _ := aggregator.BucketRange(models.PeriodWeekly, now)
		return s.runAggregation(ctx, models.DateRange{Start: start.AddDate(0, 0, -7), End: start})
	case JobMonthlyAggregation:
		start, _ := aggregator.BucketRange(models.PeriodMonthly, now)
		return s.runAggregation(ctx, models.DateRange{Start: start.AddDate(0, -1, 0), End: start})
	case JobRetentionCleanup:
		deleted, err := s.store.DeleteRawMetricsBefore(ctx, s.cfg.RetentionCutoff(now))
		if err != nil {
			return nil, utils.NewTransientError(fmt.Sprintf("retention cleanup failed: %v", err))
		}
		return map[string]interface{}{"deleted_rows": deleted}, nil
	default:
		return nil, utils.NewConfigurationError(fmt.Sprintf("job %s has no platform binding and no built-in logic", job.ID))
	}
}

// runSync delegates to the registry for one platform across all users
func (s *Scheduler) runSync(ctx context.Context, job *models.JobConfig, dateRange models.DateRange) (map[string]interface{}, error) {
	results, err := s.registry.SyncPlatformForAllUsers(ctx, job.PlatformType, job.PlatformName, dateRange)
	if err != nil {
		return nil, utils.NewTransientError(err.Error())
	}

	records := 0
	var failures []string
	for _, res := range results {
		records += res.RecordCount
		if !res.Success {
			failures = append(failures, fmt.Sprintf("%s: %s", res.UserID, res.Error))
		}
	}

	result := map[string]interface{}{
		"users_synced": len(results) - len(failures),
		"users_failed": len(failures),
		"record_count": records,
	}
	if len(failures) > 0 {
		return nil, utils.NewTransientError(fmt.Sprintf("%d of %d user syncs failed: %s",
			len(failures), len(results), strings.Join(failures, "; ")))
	}
	return result, nil
}

// runAggregation delegates to the batch aggregation over a period range
func (s *Scheduler) runAggregation(ctx context.Context, dateRange models.DateRange) (map[string]interface{}, error) {
	processed, err := s.aggregator.AggregateAllData(ctx, dateRange)
	if err != nil {
		return nil, utils.NewTransientError(err.Error())
	}
	return map[string]interface{}{
		"combinations_processed": processed,
		"range_start":            dateRange.Start,
		"range_end":              dateRange.End,
	}, nil
}

// TriggerJob starts a manual execution, independent of the timer
// schedule, sharing the same retry bookkeeping.
func (s *Scheduler) TriggerJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetJobConfig(ctx, jobID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.running[jobID] {
		s.mu.Unlock()
		return utils.NewValidationError(fmt.Sprintf("job %s is already running", jobID))
	}
	s.mu.Unlock()

	// A manual trigger restarts the retry budget
	if job.RetryCount > job.MaxRetries {
		job.RetryCount = 0
		job.UpdatedAt = time.Now()
		if err := s.store.UpdateJobConfig(ctx, job); err != nil {
			return err
		}
	}

	s.logger.Info("Job triggered manually", map[string]interface{}{"job_id": jobID})
	s.runJob(jobID)
	return nil
}

// EnableJob persists the enabled flag and arms the timer
func (s *Scheduler) EnableJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetJobConfig(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Enabled {
		return nil
	}

	job.Enabled = true
	job.RetryCount = 0
	if err := s.scheduleJob(ctx, job); err != nil {
		return err
	}

	s.logger.Info("Job enabled", map[string]interface{}{"job_id": jobID})
	return nil
}

// DisableJob persists the disabled flag and tears down any armed timer.
// An in-flight execution is not aborted.
func (s *Scheduler) DisableJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetJobConfig(ctx, jobID)
	if err != nil {
		return err
	}

	job.Enabled = false
	job.NextRun = nil
	job.UpdatedAt = time.Now()
	if err := s.store.UpdateJobConfig(ctx, job); err != nil {
		return err
	}

	s.mu.Lock()
	if t, ok := s.timers[jobID]; ok {
		t.Stop()
		delete(s.timers, jobID)
	}
	s.mu.Unlock()

	s.logger.Info("Job disabled", map[string]interface{}{"job_id": jobID})
	return nil
}

// Health summarizes the scheduler state for the control surface
func (s *Scheduler) Health(ctx context.Context) (*models.SchedulerHealth, error) {
	jobs, err := s.store.ListJobConfigs(ctx)
	if err != nil {
		// serve the last cached summary when the store is down
		if s.redis != nil {
			if cached := s.redis.GetCachedSchedulerHealth(ctx); cached != nil {
				return cached, nil
			}
		}
		return nil, err
	}

	health := &models.SchedulerHealth{
		TotalJobs:     len(jobs),
		CheckedAt:     time.Now(),
		SchedulerLive: !s.isStopped(),
	}

	var lastActivity *time.Time
	for i := range jobs {
		job := &jobs[i]
		if job.Enabled {
			health.EnabledJobs++
		}

		latest, err := s.store.LatestJobExecution(ctx, job.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}

		if latest.Status == models.JobStatusRunning {
			health.RunningJobs++
		}
		if latest.Status == models.JobStatusFailed || latest.Status == models.JobStatusTimeout {
			health.JobsInError++
		}

		at := latest.StartedAt
		if latest.CompletedAt != nil {
			at = *latest.CompletedAt
		}
		if lastActivity == nil || at.After(*lastActivity) {
			t := at
			lastActivity = &t
		}
	}
	health.LastActivity = lastActivity

	switch {
	case health.JobsInError == 0:
		health.Status = "healthy"
	case health.JobsInError*2 <= health.EnabledJobs:
		health.Status = "warning"
	default:
		health.Status = "error"
	}

	if s.redis != nil {
		s.redis.CacheSchedulerHealth(ctx, health)
	}
	return health, nil
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Shutdown disarms every timer and waits up to the configured grace
// period for in-flight executions, then returns regardless.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.stopped = true
	for jobID, t := range s.timers {
		t.Stop()
		delete(s.timers, jobID)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := s.cfg.Scheduler.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}

	select {
	case <-done:
		s.logger.Info("Scheduler drained cleanly")
	case <-time.After(grace):
		s.logger.Warn("Scheduler shutdown grace elapsed with executions in flight")
	case <-ctx.Done():
		s.logger.Warn("Scheduler shutdown context cancelled")
	}
}

// Uptime reports how long the scheduler has been running
func (s *Scheduler) Uptime() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

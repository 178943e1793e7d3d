package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpulse/internal/aggregator"
	"jobpulse/internal/alerts"
	"jobpulse/internal/config"
	"jobpulse/internal/platform"
	"jobpulse/internal/store"
	"jobpulse/pkg/models"
	"jobpulse/pkg/utils"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Alerts.Enabled = false
	return cfg
}

func newTestScheduler(t *testing.T, cfg *config.Config) (*Scheduler, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	limiter := platform.NewRateLimiter(cfg)
	t.Cleanup(limiter.Stop)
	registry := platform.NewRegistry(cfg, st, limiter)
	agg := aggregator.New(cfg, st, nil)
	sched := New(cfg, st, registry, agg, alerts.NewNotifier(cfg), nil)
	return sched, st
}

// fakeSyncService drives the registry workflow against the memory store
// with controllable fetch behavior.
type fakeSyncService struct {
	st         store.Store
	fetchDelay time.Duration
	fetchErr   string
	fetches    atomic.Int32
}

func (f *fakeSyncService) PlatformType() string { return platform.TypeJobBoard }
func (f *fakeSyncService) PlatformName() string { return platform.NameLinkedIn }

func (f *fakeSyncService) Initialize(ctx context.Context, cfg *models.PlatformConfig) models.Result {
	return models.Ok()
}

func (f *fakeSyncService) ValidateConfig(cfg *models.PlatformConfig) models.Result {
	return models.Ok()
}

func (f *fakeSyncService) SaveConfig(ctx context.Context, cfg *models.PlatformConfig) models.Result {
	if err := f.st.SavePlatformConfig(ctx, cfg); err != nil {
		return models.Fail(err.Error())
	}
	return models.Ok()
}

func (f *fakeSyncService) FetchAnalytics(ctx context.Context, userID string, dateRange models.DateRange) models.FetchResult {
	f.fetches.Add(1)
	if f.fetchDelay > 0 {
		time.Sleep(f.fetchDelay)
	}
	if f.fetchErr != "" {
		return models.FetchResult{Result: models.Fail(f.fetchErr)}
	}
	return models.FetchResult{
		Result: models.Ok(),
		Records: []models.RawMetricRecord{{
			UserID:      userID,
			MetricName:  "views",
			MetricValue: 1,
			RecordedAt:  time.Now(),
		}},
	}
}

func (f *fakeSyncService) BeginSyncExecution(ctx context.Context, userID string) (*models.JobExecution, error) {
	exec := &models.JobExecution{
		ID:        utils.GenerateExecutionID(),
		JobID:     "linkedin-sync",
		Status:    models.JobStatusRunning,
		StartedAt: time.Now(),
	}
	if err := f.st.CreateJobExecution(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

func (f *fakeSyncService) CloseSyncExecution(ctx context.Context, exec *models.JobExecution, recordCount int, syncErr error) {
	now := time.Now()
	exec.CompletedAt = &now
	if syncErr != nil {
		exec.Status = models.JobStatusFailed
		exec.Error = syncErr.Error()
	} else {
		exec.Status = models.JobStatusCompleted
	}
	_ = f.st.FinalizeJobExecution(ctx, exec)
}

func (f *fakeSyncService) PersistRawRecords(ctx context.Context, records []models.RawMetricRecord) error {
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = utils.GenerateRequestID()
		}
	}
	return f.st.InsertRawMetrics(ctx, records)
}

func (f *fakeSyncService) UpdateLastSync(ctx context.Context, userID string, syncedAt time.Time) error {
	return f.st.UpdateLastSync(ctx, userID, platform.TypeJobBoard, platform.NameLinkedIn, syncedAt)
}

func (f *fakeSyncService) GetConfig(ctx context.Context, userID string) (*models.PlatformConfig, error) {
	return f.st.GetPlatformConfig(ctx, userID, platform.TypeJobBoard, platform.NameLinkedIn)
}

func seedLinkedInUser(t *testing.T, st store.Store, userID string) {
	t.Helper()
	err := st.SavePlatformConfig(context.Background(), &models.PlatformConfig{
		ID:           utils.GenerateRequestID(),
		UserID:       userID,
		PlatformType: platform.TypeJobBoard,
		PlatformName: platform.NameLinkedIn,
		IsActive:     true,
	})
	require.NoError(t, err)
}

func TestEnsureDefaultJobsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	sched, st := newTestScheduler(t, cfg)
	ctx := context.Background()

	require.NoError(t, sched.EnsureDefaultJobs(ctx))
	jobs, err := st.ListJobConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 7)

	for _, job := range jobs {
		assert.True(t, job.Enabled, "job %s", job.ID)
		require.NotNil(t, job.NextRun, "job %s", job.ID)
		assert.True(t, job.NextRun.After(time.Now().Add(-time.Second)), "job %s", job.ID)
	}

	// Re-running creates nothing new
	require.NoError(t, sched.EnsureDefaultJobs(ctx))
	jobs, err = st.ListJobConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 7)
}

func TestFailingJobExhaustsRetriesAndAlerts(t *testing.T) {
	cfg := testConfig(t)

	var alertCount atomic.Int32
	var lastAlert alerts.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alertCount.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&lastAlert)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	cfg.Alerts.Enabled = true
	cfg.Alerts.WebhookURL = srv.URL

	sched, st := newTestScheduler(t, cfg)
	ctx := context.Background()

	job := &models.JobConfig{
		ID:         "broken-job",
		Name:       "Job with no logic",
		Schedule:   "0 */15 * * * *",
		Enabled:    true,
		MaxRetries: 1,
		TimeoutMs:  5000,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, st.CreateJobConfig(ctx, job))

	sched.runCycle(ctx, job.ID)

	// max_retries = 1 means exactly 2 attempts before terminal
	execs, err := st.ListJobExecutions(ctx, job.ID, 10)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	for _, exec := range execs {
		assert.Equal(t, models.JobStatusFailed, exec.Status)
		assert.NotEmpty(t, exec.Error)
		assert.NotNil(t, exec.CompletedAt)
	}
	// newest first
	assert.Equal(t, 1, execs[0].RetryAttempt)
	assert.Equal(t, 0, execs[1].RetryAttempt)

	updated, err := st.GetJobConfig(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.RetryCount)
	assert.Nil(t, updated.NextRun, "terminal job must not be rescheduled")

	assert.Equal(t, int32(1), alertCount.Load())
	assert.Equal(t, "permanent_failure", lastAlert.Kind)
	assert.Equal(t, job.ID, lastAlert.JobID)
	assert.Contains(t, lastAlert.Details["error"], "Permanent failure")
}

func TestSuccessfulRunResetsRetryCountAndReschedules(t *testing.T) {
	cfg := testConfig(t)
	sched, st := newTestScheduler(t, cfg)
	ctx := context.Background()

	require.NoError(t, sched.EnsureDefaultJobs(ctx))

	// Retention cleanup needs only the store, so it always succeeds
	job, err := st.GetJobConfig(ctx, JobRetentionCleanup)
	require.NoError(t, err)
	job.RetryCount = 2
	require.NoError(t, st.UpdateJobConfig(ctx, job))

	sched.runCycle(ctx, JobRetentionCleanup)

	execs, err := st.ListJobExecutions(ctx, JobRetentionCleanup, 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, models.JobStatusCompleted, execs[0].Status)
	assert.Contains(t, execs[0].Result, "deleted_rows")

	updated, err := st.GetJobConfig(ctx, JobRetentionCleanup)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.RetryCount)
	require.NotNil(t, updated.LastRun)
	require.NotNil(t, updated.NextRun)
	assert.True(t, updated.NextRun.After(time.Now()))
}

func TestSyncJobFailureRecordsFailedExecution(t *testing.T) {
	cfg := testConfig(t)
	sched, st := newTestScheduler(t, cfg)
	ctx := context.Background()

	fake := &fakeSyncService{st: st, fetchErr: "upstream unavailable"}
	sched.registry.Register(platform.TypeJobBoard, platform.NameLinkedIn, func() platform.SyncCapable { return fake })
	seedLinkedInUser(t, st, "user-1")

	require.NoError(t, sched.EnsureDefaultJobs(ctx))
	job, err := st.GetJobConfig(ctx, JobLinkedInSync)
	require.NoError(t, err)
	job.MaxRetries = 0
	require.NoError(t, st.UpdateJobConfig(ctx, job))

	sched.runCycle(ctx, JobLinkedInSync)

	latest, err := st.LatestJobExecution(ctx, JobLinkedInSync)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, latest.Status)
	assert.Contains(t, latest.Error, "upstream unavailable")

	updated, err := st.GetJobConfig(ctx, JobLinkedInSync)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RetryCount)
}

func TestExecuteJobTimeoutWins(t *testing.T) {
	cfg := testConfig(t)
	sched, st := newTestScheduler(t, cfg)
	ctx := context.Background()

	fake := &fakeSyncService{st: st, fetchDelay: 500 * time.Millisecond}
	sched.registry.Register(platform.TypeJobBoard, platform.NameLinkedIn, func() platform.SyncCapable { return fake })
	seedLinkedInUser(t, st, "user-1")

	job := &models.JobConfig{
		ID:           "slow-sync",
		Name:         "Slow sync",
		Schedule:     "0 */15 * * * *",
		Enabled:      true,
		PlatformType: platform.TypeJobBoard,
		PlatformName: platform.NameLinkedIn,
		MaxRetries:   3,
		TimeoutMs:    50,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, st.CreateJobConfig(ctx, job))

	err := sched.executeJob(ctx, job)
	require.Error(t, err)
	assert.True(t, utils.IsTimeout(err))

	latest, err := st.LatestJobExecution(ctx, "slow-sync")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusTimeout, latest.Status)
	assert.NotEmpty(t, latest.Error)
}

func TestTriggerJobRunsManually(t *testing.T) {
	cfg := testConfig(t)
	sched, st := newTestScheduler(t, cfg)
	ctx := context.Background()

	require.NoError(t, sched.EnsureDefaultJobs(ctx))
	require.NoError(t, sched.TriggerJob(ctx, JobRetentionCleanup))

	require.Eventually(t, func() bool {
		latest, err := st.LatestJobExecution(ctx, JobRetentionCleanup)
		return err == nil && latest.Status == models.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestTriggerJobUnknownJob(t *testing.T) {
	cfg := testConfig(t)
	sched, _ := newTestScheduler(t, cfg)

	err := sched.TriggerJob(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDisableEnableTimerDiscipline(t *testing.T) {
	cfg := testConfig(t)
	sched, st := newTestScheduler(t, cfg)
	ctx := context.Background()

	require.NoError(t, sched.Start(ctx))
	defer sched.Shutdown(ctx)

	timerCount := func(jobID string) int {
		sched.mu.Lock()
		defer sched.mu.Unlock()
		if _, ok := sched.timers[jobID]; ok {
			return 1
		}
		return 0
	}

	assert.Equal(t, 1, timerCount(JobLinkedInSync))

	require.NoError(t, sched.DisableJob(ctx, JobLinkedInSync))
	assert.Equal(t, 0, timerCount(JobLinkedInSync))

	job, err := st.GetJobConfig(ctx, JobLinkedInSync)
	require.NoError(t, err)
	assert.False(t, job.Enabled)
	assert.Nil(t, job.NextRun)

	// repeated cycles never accumulate more than one armed timer
	for i := 0; i < 3; i++ {
		require.NoError(t, sched.EnableJob(ctx, JobLinkedInSync))
		assert.Equal(t, 1, timerCount(JobLinkedInSync))
		require.NoError(t, sched.DisableJob(ctx, JobLinkedInSync))
		assert.Equal(t, 0, timerCount(JobLinkedInSync))
	}

	require.NoError(t, sched.EnableJob(ctx, JobLinkedInSync))
	job, err = st.GetJobConfig(ctx, JobLinkedInSync)
	require.NoError(t, err)
	assert.True(t, job.Enabled)
	require.NotNil(t, job.NextRun)
	assert.True(t, job.NextRun.After(time.Now()))
}

func waitForCycleSettled(t *testing.T, sched *Scheduler, jobID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		sched.mu.Lock()
		defer sched.mu.Unlock()
		return !sched.running[jobID]
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDisableDuringInFlightExecutionSticks(t *testing.T) {
	cfg := testConfig(t)
	sched, st := newTestScheduler(t, cfg)
	ctx := context.Background()

	fake := &fakeSyncService{st: st, fetchDelay: 400 * time.Millisecond}
	sched.registry.Register(platform.TypeJobBoard, platform.NameLinkedIn, func() platform.SyncCapable { return fake })
	seedLinkedInUser(t, st, "user-1")

	require.NoError(t, sched.EnsureDefaultJobs(ctx))
	sched.runJob(JobLinkedInSync)

	// disable while the fetch is still sleeping
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, sched.DisableJob(ctx, JobLinkedInSync))

	waitForCycleSettled(t, sched, JobLinkedInSync)

	job, err := st.GetJobConfig(ctx, JobLinkedInSync)
	require.NoError(t, err)
	assert.False(t, job.Enabled, "disable issued mid-flight must survive the cycle's bookkeeping")
	assert.Nil(t, job.NextRun)
	require.NotNil(t, job.LastRun, "the in-flight execution still completes and is recorded")

	sched.mu.Lock()
	_, armed := sched.timers[JobLinkedInSync]
	sched.mu.Unlock()
	assert.False(t, armed, "disabled job must not hold an armed timer")
}

func TestDisableDuringInFlightExecutionStopsRetries(t *testing.T) {
	cfg := testConfig(t)
	sched, st := newTestScheduler(t, cfg)
	ctx := context.Background()

	fake := &fakeSyncService{st: st, fetchDelay: 400 * time.Millisecond, fetchErr: "upstream unavailable"}
	sched.registry.Register(platform.TypeJobBoard, platform.NameLinkedIn, func() platform.SyncCapable { return fake })
	seedLinkedInUser(t, st, "user-1")

	require.NoError(t, sched.EnsureDefaultJobs(ctx))
	job, err := st.GetJobConfig(ctx, JobLinkedInSync)
	require.NoError(t, err)
	job.MaxRetries = 3
	require.NoError(t, st.UpdateJobConfig(ctx, job))

	sched.runJob(JobLinkedInSync)
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, sched.DisableJob(ctx, JobLinkedInSync))

	waitForCycleSettled(t, sched, JobLinkedInSync)

	// the failing attempt is recorded but no retry follows
	assert.Equal(t, int32(1), fake.fetches.Load())

	// one scheduler attempt row plus the sync workflow's own record
	execs, err := st.ListJobExecutions(ctx, JobLinkedInSync, 10)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	for _, exec := range execs {
		assert.Equal(t, models.JobStatusFailed, exec.Status)
	}

	job, err = st.GetJobConfig(ctx, JobLinkedInSync)
	require.NoError(t, err)
	assert.False(t, job.Enabled)
	assert.Equal(t, 1, job.RetryCount)
	assert.Nil(t, job.NextRun)
}

func TestHealthStatusTag(t *testing.T) {
	cfg := testConfig(t)
	sched, st := newTestScheduler(t, cfg)
	ctx := context.Background()

	require.NoError(t, sched.EnsureDefaultJobs(ctx))
	jobs, err := st.ListJobConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 7)

	finalize := func(jobID string, status models.JobStatus) {
		exec := &models.JobExecution{
			ID:        utils.GenerateExecutionID(),
			JobID:     jobID,
			Status:    models.JobStatusRunning,
			StartedAt: time.Now(),
		}
		require.NoError(t, st.CreateJobExecution(ctx, exec))
		now := time.Now()
		exec.Status = status
		exec.CompletedAt = &now
		require.NoError(t, st.FinalizeJobExecution(ctx, exec))
	}

	// all settled successfully
	for _, job := range jobs {
		finalize(job.ID, models.JobStatusCompleted)
	}
	health, err := sched.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 7, health.TotalJobs)
	assert.Equal(t, 7, health.EnabledJobs)
	assert.Equal(t, 0, health.JobsInError)
	assert.NotNil(t, health.LastActivity)

	// 3 of 7 errored: within half of enabled
	for _, job := range jobs[:3] {
		finalize(job.ID, models.JobStatusFailed)
	}
	health, err = sched.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "warning", health.Status)
	assert.Equal(t, 3, health.JobsInError)

	// 4 of 7 errored: more than half
	finalize(jobs[3].ID, models.JobStatusTimeout)
	health, err = sched.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "error", health.Status)
}

func TestShutdownDisarmsTimers(t *testing.T) {
	cfg := testConfig(t)
	sched, _ := newTestScheduler(t, cfg)
	ctx := context.Background()

	require.NoError(t, sched.Start(ctx))

	done := make(chan struct{})
	go func() {
		sched.Shutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return within grace period")
	}

	sched.mu.Lock()
	defer sched.mu.Unlock()
	assert.True(t, sched.stopped)
	assert.Empty(t, sched.timers)
}

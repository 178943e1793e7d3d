package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpulse/pkg/models"
)

func TestJobConfigRoundTrip(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.GetJobConfig(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	job := &models.JobConfig{
		ID:         "linkedin-sync",
		Name:       "LinkedIn Sync",
		Schedule:   "0 */15 * * * *",
		Enabled:    true,
		MaxRetries: 3,
	}
	require.NoError(t, st.CreateJobConfig(ctx, job))

	got, err := st.GetJobConfig(ctx, "linkedin-sync")
	require.NoError(t, err)
	assert.Equal(t, "LinkedIn Sync", got.Name)

	got.Enabled = false
	require.NoError(t, st.UpdateJobConfig(ctx, got))

	got, err = st.GetJobConfig(ctx, "linkedin-sync")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	err = st.UpdateJobConfig(ctx, &models.JobConfig{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinalizeJobExecutionOnce(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	exec := &models.JobExecution{
		ID:        "exec-1",
		JobID:     "linkedin-sync",
		Status:    models.JobStatusRunning,
		StartedAt: time.Now(),
	}
	require.NoError(t, st.CreateJobExecution(ctx, exec))

	now := time.Now()
	exec.Status = models.JobStatusCompleted
	exec.CompletedAt = &now
	require.NoError(t, st.FinalizeJobExecution(ctx, exec))

	exec.Status = models.JobStatusFailed
	err := st.FinalizeJobExecution(ctx, exec)
	assert.ErrorIs(t, err, ErrFinalized)

	// the first outcome sticks
	latest, err := st.LatestJobExecution(ctx, "linkedin-sync")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, latest.Status)
}

func TestListJobExecutionsNewestFirstBounded(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, st.CreateJobExecution(ctx, &models.JobExecution{
			ID:        fmt.Sprintf("exec-%d", i),
			JobID:     "daily-aggregation",
			Status:    models.JobStatusCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	execs, err := st.ListJobExecutions(ctx, "daily-aggregation", 3)
	require.NoError(t, err)
	require.Len(t, execs, 3)
	assert.Equal(t, "exec-4", execs[0].ID)
	assert.Equal(t, "exec-3", execs[1].ID)
	assert.Equal(t, "exec-2", execs[2].ID)
}

func TestUpsertAggregatedRecordConverges(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	key := models.AggregatedKey{
		UserID:       "user-1",
		PlatformType: "job_board",
		PlatformName: "linkedin",
		PeriodType:   models.PeriodDaily,
		PeriodStart:  day,
	}

	first := &models.AggregatedRecord{Key: key, PeriodEnd: day.AddDate(0, 0, 1), TotalViews: 10}
	require.NoError(t, st.UpsertAggregatedRecord(ctx, first))
	second := &models.AggregatedRecord{Key: key, PeriodEnd: day.AddDate(0, 0, 1), TotalViews: 25}
	require.NoError(t, st.UpsertAggregatedRecord(ctx, second))

	r := models.DateRange{Start: day, End: day.AddDate(0, 0, 1)}
	records, err := st.ListAggregatedRecords(ctx, "user-1", models.PeriodDaily, r)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, float64(25), records[0].TotalViews)
}

func TestDeleteRawMetricsBefore(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, st.InsertRawMetrics(ctx, []models.RawMetricRecord{
		{ID: "old", UserID: "user-1", MetricName: "views", MetricValue: 1, RecordedAt: now.AddDate(0, 0, -100)},
		{ID: "recent", UserID: "user-1", MetricName: "views", MetricValue: 1, RecordedAt: now.Add(-time.Hour)},
	}))

	deleted, err := st.DeleteRawMetricsBefore(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	r := models.DateRange{Start: now.AddDate(0, -6, 0), End: now}
	remaining, err := st.QueryRawMetrics(ctx, "user-1", r)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "recent", remaining[0].ID)
}

func TestListUsersWithActivePlatform(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	active := &models.PlatformConfig{ID: "a", UserID: "user-1", PlatformType: "job_board", PlatformName: "linkedin", IsActive: true}
	inactive := &models.PlatformConfig{ID: "b", UserID: "user-2", PlatformType: "job_board", PlatformName: "linkedin", IsActive: false}
	other := &models.PlatformConfig{ID: "c", UserID: "user-3", PlatformType: "job_board", PlatformName: "indeed", IsActive: true}
	for _, cfg := range []*models.PlatformConfig{active, inactive, other} {
		require.NoError(t, st.SavePlatformConfig(ctx, cfg))
	}

	users, err := st.ListUsersWithActivePlatform(ctx, "job_board", "linkedin")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, users)
}

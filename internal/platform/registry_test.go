package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpulse/internal/config"
	"jobpulse/internal/store"
	"jobpulse/pkg/models"
)

func testRegistry(t *testing.T) (*Registry, *store.MemoryStore) {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	st := store.NewMemoryStore()
	limiter := NewRateLimiter(cfg)
	t.Cleanup(limiter.Stop)
	return NewRegistry(cfg, st, limiter), st
}

// stubService embeds the shared persistence core and stubs out the
// external fetch, so the registry workflow runs against the memory store
// without any network.
type stubService struct {
	baseService
	records  []models.RawMetricRecord
	fetchErr string
	initErr  string
	fetches  int
}

func newStubService(platformType, platformName string, st store.Store, limiter *RateLimiter) *stubService {
	return &stubService{baseService: newBaseService(platformType, platformName, st, limiter)}
}

func (s *stubService) Initialize(ctx context.Context, cfg *models.PlatformConfig) models.Result {
	if s.initErr != "" {
		return models.Fail(s.initErr)
	}
	return models.Ok()
}

func (s *stubService) FetchAnalytics(ctx context.Context, userID string, dateRange models.DateRange) models.FetchResult {
	s.fetches++
	if s.fetchErr != "" {
		return models.FetchResult{Result: models.Fail(s.fetchErr)}
	}
	return models.FetchResult{Result: models.Ok(), Records: s.records}
}

func activeConfig(userID, platformType, platformName string) *models.PlatformConfig {
	return &models.PlatformConfig{
		ID:           userID + "-" + platformName,
		UserID:       userID,
		PlatformType: platformType,
		PlatformName: platformName,
		APIKey:       "test-key",
		IsActive:     true,
	}
}

func TestGetServiceReturnsSingleton(t *testing.T) {
	reg, _ := testRegistry(t)

	first, err := reg.GetService(TypeJobBoard, NameLinkedIn)
	require.NoError(t, err)
	second, err := reg.GetService(TypeJobBoard, NameLinkedIn)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = reg.GetService(TypeJobBoard, "glassdoor")
	assert.Error(t, err)
}

func TestRegisterReplacesBinding(t *testing.T) {
	reg, st := testRegistry(t)

	stub := newStubService(TypeJobBoard, NameLinkedIn, st, nil)
	reg.Register(TypeJobBoard, NameLinkedIn, func() SyncCapable { return stub })

	svc, err := reg.GetService(TypeJobBoard, NameLinkedIn)
	require.NoError(t, err)
	assert.Same(t, SyncCapable(stub), svc)
}

func TestSyncAllPlatformsIsolatesFailures(t *testing.T) {
	reg, st := testRegistry(t)
	ctx := context.Background()

	require.NoError(t, st.SavePlatformConfig(ctx, activeConfig("user-1", TypeJobBoard, NameLinkedIn)))
	require.NoError(t, st.SavePlatformConfig(ctx, activeConfig("user-1", TypeJobBoard, NameIndeed)))

	good := newStubService(TypeJobBoard, NameLinkedIn, st, nil)
	good.records = []models.RawMetricRecord{
		{UserID: "user-1", MetricName: "views", MetricValue: 10, RecordedAt: time.Now()},
	}
	bad := newStubService(TypeJobBoard, NameIndeed, st, nil)
	bad.fetchErr = "upstream unavailable"

	reg.Register(TypeJobBoard, NameLinkedIn, func() SyncCapable { return good })
	reg.Register(TypeJobBoard, NameIndeed, func() SyncCapable { return bad })

	dateRange := models.DateRange{Start: time.Now().Add(-24 * time.Hour), End: time.Now()}
	results, err := reg.SyncAllPlatforms(ctx, "user-1", dateRange)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]models.SyncResult{}
	for _, res := range results {
		byName[res.PlatformName] = res
	}

	assert.True(t, byName[NameLinkedIn].Success)
	assert.Equal(t, 1, byName[NameLinkedIn].RecordCount)
	assert.False(t, byName[NameIndeed].Success)
	assert.Equal(t, "upstream unavailable", byName[NameIndeed].Error)

	// the good platform's rows landed despite the bad one
	raw, err := st.QueryRawMetrics(ctx, "user-1", dateRange)
	require.NoError(t, err)
	assert.Len(t, raw, 1)
}

func TestSyncRecordsFailedExecution(t *testing.T) {
	reg, st := testRegistry(t)
	ctx := context.Background()

	require.NoError(t, st.SavePlatformConfig(ctx, activeConfig("user-1", TypeJobBoard, NameLinkedIn)))

	bad := newStubService(TypeJobBoard, NameLinkedIn, st, nil)
	bad.fetchErr = "token expired"
	reg.Register(TypeJobBoard, NameLinkedIn, func() SyncCapable { return bad })

	dateRange := models.DateRange{Start: time.Now().Add(-time.Hour), End: time.Now()}
	results, err := reg.SyncPlatformForAllUsers(ctx, TypeJobBoard, NameLinkedIn, dateRange)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)

	execs, err := st.ListJobExecutions(ctx, "linkedin-sync", 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, models.JobStatusFailed, execs[0].Status)
	assert.Equal(t, "token expired", execs[0].Error)
	require.NotNil(t, execs[0].CompletedAt)
}

func TestSyncStampsLastSyncOnSuccess(t *testing.T) {
	reg, st := testRegistry(t)
	ctx := context.Background()

	require.NoError(t, st.SavePlatformConfig(ctx, activeConfig("user-1", TypeJobBoard, NameLinkedIn)))

	stub := newStubService(TypeJobBoard, NameLinkedIn, st, nil)
	reg.Register(TypeJobBoard, NameLinkedIn, func() SyncCapable { return stub })

	dateRange := models.DateRange{Start: time.Now().Add(-time.Hour), End: time.Now()}
	results, err := reg.SyncAllPlatforms(ctx, "user-1", dateRange)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	cfg, err := st.GetPlatformConfig(ctx, "user-1", TypeJobBoard, NameLinkedIn)
	require.NoError(t, err)
	require.NotNil(t, cfg.LastSyncAt)
	assert.WithinDuration(t, time.Now(), *cfg.LastSyncAt, 5*time.Second)
}

func TestValidateConfigRejectsBadBindings(t *testing.T) {
	_, st := testRegistry(t)
	svc := newStubService(TypeJobBoard, NameLinkedIn, st, nil)

	tests := []struct {
		name string
		cfg  *models.PlatformConfig
	}{
		{"nil config", nil},
		{"missing user", activeConfig("", TypeJobBoard, NameLinkedIn)},
		{"unknown type", activeConfig("user-1", "social", NameLinkedIn)},
		{"unknown name", activeConfig("user-1", TypeJobBoard, "glassdoor")},
		{"wrong binding", activeConfig("user-1", TypeReferral, NameReferral)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.ValidateConfig(tt.cfg)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Error)
		})
	}

	res := svc.ValidateConfig(activeConfig("user-1", TypeJobBoard, NameLinkedIn))
	assert.True(t, res.Success)
}

package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpulse/internal/config"
	"jobpulse/internal/store"
	"jobpulse/pkg/models"
	"jobpulse/pkg/utils"
)

func testAggregator(t *testing.T) (*Aggregator, *store.MemoryStore) {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	st := store.NewMemoryStore()
	return New(cfg, st, nil), st
}

func rawRow(userID, metric string, value float64, at time.Time) models.RawMetricRecord {
	return models.RawMetricRecord{
		ID:           utils.GenerateRequestID(),
		UserID:       userID,
		PlatformType: "job_board",
		PlatformName: "linkedin",
		MetricName:   metric,
		MetricValue:  value,
		RecordedAt:   at,
	}
}

func TestBucketRange(t *testing.T) {
	// 2026-03-10 is a Tuesday
	at := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		periodType models.PeriodType
		wantStart  time.Time
		wantEnd    time.Time
	}{
		{models.PeriodDaily, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)},
		{models.PeriodWeekly, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{models.PeriodMonthly, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.periodType), func(t *testing.T) {
			start, end := BucketRange(tt.periodType, at)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}

	// a Sunday belongs to the week it starts
	sunday := time.Date(2026, 3, 8, 3, 0, 0, 0, time.UTC)
	start, end := BucketRange(models.PeriodWeekly, sunday)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), end)
}

func TestAggregateDataDailyExample(t *testing.T) {
	agg, st := testAggregator(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertRawMetrics(ctx, []models.RawMetricRecord{
		rawRow("user-1", "views", 100, day.Add(9*time.Hour)),
		rawRow("user-1", "applications", 10, day.Add(11*time.Hour)),
	}))

	dateRange := models.DateRange{Start: day, End: day.AddDate(0, 0, 1)}
	require.NoError(t, agg.AggregateData(ctx, "user-1", models.PeriodDaily, dateRange))

	records, err := st.ListAggregatedRecords(ctx, "user-1", models.PeriodDaily, dateRange)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, float64(100), rec.TotalViews)
	assert.Equal(t, float64(10), rec.TotalApplications)
	assert.Equal(t, float64(0), rec.TotalClicks)
	assert.Equal(t, 10.0, rec.ConversionRate)
	assert.Equal(t, day, rec.Key.PeriodStart)
	assert.Equal(t, day.AddDate(0, 0, 1), rec.PeriodEnd)
}

func TestAggregateDataIdempotent(t *testing.T) {
	agg, st := testAggregator(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertRawMetrics(ctx, []models.RawMetricRecord{
		rawRow("user-1", "views", 40, day.Add(time.Hour)),
		rawRow("user-1", "views", 60, day.Add(2*time.Hour)),
		rawRow("user-1", "clicks", 5, day.Add(3*time.Hour)),
		rawRow("user-1", "applications", 10, day.Add(4*time.Hour)),
	}))

	dateRange := models.DateRange{Start: day, End: day.AddDate(0, 0, 1)}

	for _, periodType := range models.AllPeriodTypes {
		require.NoError(t, agg.AggregateData(ctx, "user-1", periodType, dateRange))
		require.NoError(t, agg.AggregateData(ctx, "user-1", periodType, dateRange))

		queryRange := models.DateRange{Start: day.AddDate(0, -1, 0), End: day.AddDate(0, 1, 0)}
		records, err := st.ListAggregatedRecords(ctx, "user-1", periodType, queryRange)
		require.NoError(t, err)
		require.Len(t, records, 1, "period %s must converge to one row", periodType)

		rec := records[0]
		assert.Equal(t, float64(100), rec.TotalViews, "period %s", periodType)
		assert.Equal(t, float64(10), rec.TotalApplications)
		assert.Equal(t, float64(5), rec.TotalClicks)
		assert.Equal(t, 10.0, rec.ConversionRate)
	}
}

func TestAggregateDataAliasMatching(t *testing.T) {
	agg, st := testAggregator(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rows := []models.RawMetricRecord{
		rawRow("user-1", "applications", 3, day.Add(time.Hour)),
		rawRow("user-1", "total_applications", 7, day.Add(2*time.Hour)),
		rawRow("user-1", "views", 20, day.Add(3*time.Hour)),
		rawRow("user-1", "total_views", 30, day.Add(4*time.Hour)),
		rawRow("user-1", "clicks", 2, day.Add(5*time.Hour)),
		rawRow("user-1", "total_clicks", 4, day.Add(6*time.Hour)),
	}
	// an unrecognized metric stays out of the sums but its metadata merges
	odd := rawRow("user-1", "saves", 99, day.Add(7*time.Hour))
	odd.Metadata = map[string]interface{}{"campaign": "spring"}
	rows = append(rows, odd)
	require.NoError(t, st.InsertRawMetrics(ctx, rows))

	dateRange := models.DateRange{Start: day, End: day.AddDate(0, 0, 1)}
	require.NoError(t, agg.AggregateData(ctx, "user-1", models.PeriodDaily, dateRange))

	records, err := st.ListAggregatedRecords(ctx, "user-1", models.PeriodDaily, dateRange)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, float64(10), rec.TotalApplications)
	assert.Equal(t, float64(50), rec.TotalViews)
	assert.Equal(t, float64(6), rec.TotalClicks)
	assert.Equal(t, 20.0, rec.ConversionRate)
	assert.Equal(t, "spring", rec.Metadata["campaign"])
}

func TestAggregateDataMetadataLastWriteWins(t *testing.T) {
	agg, st := testAggregator(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	first := rawRow("user-1", "views", 1, day.Add(time.Hour))
	first.Metadata = map[string]interface{}{"source": "feed", "region": "eu"}
	second := rawRow("user-1", "views", 2, day.Add(2*time.Hour))
	second.Metadata = map[string]interface{}{"source": "search"}
	require.NoError(t, st.InsertRawMetrics(ctx, []models.RawMetricRecord{first, second}))

	dateRange := models.DateRange{Start: day, End: day.AddDate(0, 0, 1)}
	require.NoError(t, agg.AggregateData(ctx, "user-1", models.PeriodDaily, dateRange))

	records, err := st.ListAggregatedRecords(ctx, "user-1", models.PeriodDaily, dateRange)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "search", records[0].Metadata["source"])
	assert.Equal(t, "eu", records[0].Metadata["region"])
}

func TestAggregateDataZeroViewsZeroRate(t *testing.T) {
	agg, st := testAggregator(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertRawMetrics(ctx, []models.RawMetricRecord{
		rawRow("user-1", "applications", 5, day.Add(time.Hour)),
	}))

	dateRange := models.DateRange{Start: day, End: day.AddDate(0, 0, 1)}
	require.NoError(t, agg.AggregateData(ctx, "user-1", models.PeriodDaily, dateRange))

	records, err := st.ListAggregatedRecords(ctx, "user-1", models.PeriodDaily, dateRange)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, float64(0), records[0].ConversionRate)
}

func TestConversionRateClampedToHundred(t *testing.T) {
	agg, st := testAggregator(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertRawMetrics(ctx, []models.RawMetricRecord{
		rawRow("user-1", "views", 5, day.Add(time.Hour)),
		rawRow("user-1", "applications", 10, day.Add(2*time.Hour)),
	}))

	dateRange := models.DateRange{Start: day, End: day.AddDate(0, 0, 1)}
	require.NoError(t, agg.AggregateData(ctx, "user-1", models.PeriodDaily, dateRange))

	records, err := st.ListAggregatedRecords(ctx, "user-1", models.PeriodDaily, dateRange)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, float64(100), records[0].ConversionRate)
}

func TestAggregateDataBucketsByOwnRecordedAt(t *testing.T) {
	agg, st := testAggregator(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertRawMetrics(ctx, []models.RawMetricRecord{
		rawRow("user-1", "views", 10, day1.Add(time.Hour)),
		rawRow("user-1", "views", 20, day2.Add(time.Hour)),
	}))

	dateRange := models.DateRange{Start: day1, End: day2.AddDate(0, 0, 1)}
	require.NoError(t, agg.AggregateData(ctx, "user-1", models.PeriodDaily, dateRange))

	records, err := st.ListAggregatedRecords(ctx, "user-1", models.PeriodDaily, dateRange)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, day1, records[0].Key.PeriodStart)
	assert.Equal(t, float64(10), records[0].TotalViews)
	assert.Equal(t, day2, records[1].Key.PeriodStart)
	assert.Equal(t, float64(20), records[1].TotalViews)
}

func TestAggregateAllDataIsolatesUsers(t *testing.T) {
	agg, st := testAggregator(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertRawMetrics(ctx, []models.RawMetricRecord{
		rawRow("user-1", "views", 10, day.Add(time.Hour)),
		rawRow("user-2", "views", 20, day.Add(time.Hour)),
	}))

	dateRange := models.DateRange{Start: day, End: day.AddDate(0, 0, 1)}
	processed, err := agg.AggregateAllData(ctx, dateRange)
	require.NoError(t, err)
	// two users times three period types
	assert.Equal(t, 6, processed)

	for _, userID := range []string{"user-1", "user-2"} {
		records, err := st.ListAggregatedRecords(ctx, userID, models.PeriodDaily, dateRange)
		require.NoError(t, err)
		assert.Len(t, records, 1, "user %s", userID)
	}
}

func TestUpdateRealTimeAnalyticsAdditive(t *testing.T) {
	agg, st := testAggregator(t)
	ctx := context.Background()

	require.NoError(t, agg.UpdateRealTimeAnalytics(ctx, "user-1", "job_board", "linkedin", "views", 5, ""))
	require.NoError(t, agg.UpdateRealTimeAnalytics(ctx, "user-1", "job_board", "linkedin", "views", 3, ""))
	require.NoError(t, agg.UpdateRealTimeAnalytics(ctx, "user-1", "job_board", "linkedin", "applications", 2, ""))

	today, _ := BucketRange(models.PeriodDaily, time.Now())
	key := models.AggregatedKey{
		UserID:       "user-1",
		PlatformType: "job_board",
		PlatformName: "linkedin",
		PeriodType:   models.PeriodDaily,
		PeriodStart:  today,
	}
	rec, err := st.GetAggregatedRecord(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, float64(8), rec.TotalViews)
	assert.Equal(t, float64(2), rec.TotalApplications)
	assert.Equal(t, 25.0, rec.ConversionRate)
}

func TestUpdateRealTimeAnalyticsRejectsUnknownMetric(t *testing.T) {
	agg, _ := testAggregator(t)

	err := agg.UpdateRealTimeAnalytics(context.Background(), "user-1", "job_board", "linkedin", "saves", 1, "")
	require.Error(t, err)

	var custom *utils.CustomError
	require.ErrorAs(t, err, &custom)
	assert.Equal(t, utils.KindValidation, custom.Kind)
}

package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/logging"
	"jobpulse/internal/store"
	"jobpulse/pkg/models"
	"jobpulse/pkg/utils"
)

// Aggregator rolls raw time-series metrics into period-aggregated rows.
// The batch path recomputes aggregates from raw rows each time, so
// re-running it over identical inputs is idempotent.
type Aggregator struct {
	cfg    *config.Config
	store  store.Store
	redis  *utils.RedisClient
	logger logging.Logger
}

// New creates an aggregator. The redis client is optional; when nil,
// snapshot caching is skipped.
func New(cfg *config.Config, st store.Store, redis *utils.RedisClient) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		store:  st,
		redis:  redis,
		logger: logging.GetGlobalLogger().WithField("component", "aggregator"),
	}
}

// BucketRange returns the period bucket containing t. Buckets derive
// from the row's own recorded_at, never clamped to a query range:
// daily is the calendar day, weekly the Sunday-aligned 7-day window,
// monthly the calendar month. All buckets are UTC-aligned.
func BucketRange(periodType models.PeriodType, t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	switch periodType {
	case models.PeriodWeekly:
		start := day.AddDate(0, 0, -int(day.Weekday()))
		return start, start.AddDate(0, 0, 7)
	case models.PeriodMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}

// conversionRate derives the rate in [0,100], 0 whenever views is 0
func conversionRate(applications, views float64) float64 {
	if views <= 0 {
		return 0
	}
	rate := applications / views * 100
	if rate > 100 {
		return 100
	}
	return rate
}

// group accumulates one period bucket while raw rows are folded in
type group struct {
	key          models.AggregatedKey
	periodEnd    time.Time
	applications float64
	views        float64
	clicks       float64
	metadata     map[string]interface{}
}

// AggregateData recomputes aggregated rows for one user and period type
// from the raw rows inside [start, end). Upserts are keyed by the full
// period key so concurrent aggregations of one period converge to a
// single row.
func (a *Aggregator) AggregateData(ctx context.Context, userID string, periodType models.PeriodType, dateRange models.DateRange) error {
	records, err := a.store.QueryRawMetrics(ctx, userID, dateRange)
	if err != nil {
		return fmt.Errorf("query raw metrics: %w", err)
	}

	groups := make(map[string]*group)
	order := make([]string, 0)

	for _, rec := range records {
		periodStart, periodEnd := BucketRange(periodType, rec.RecordedAt)
		key := models.AggregatedKey{
			UserID:       rec.UserID,
			PlatformType: rec.PlatformType,
			PlatformName: rec.PlatformName,
			JobPostingID: rec.JobPostingID,
			PeriodType:   periodType,
			PeriodStart:  periodStart,
		}
		id := fmt.Sprintf("%s|%s|%s|%s|%d", key.UserID, key.PlatformType, key.PlatformName, key.JobPostingID, periodStart.Unix())

		g, ok := groups[id]
		if !ok {
			g = &group{key: key, periodEnd: periodEnd}
			groups[id] = g
			order = append(order, id)
		}

		switch rec.MetricName {
		case "applications", "total_applications":
			g.applications += rec.MetricValue
		case "views", "total_views":
			g.views += rec.MetricValue
		case "clicks", "total_clicks":
			g.clicks += rec.MetricValue
		default:
			// Unrecognized metrics stay out of the sums; their metadata
			// still merges below.
		}
		g.metadata = utils.MergeMetadata(g.metadata, rec.Metadata)
	}

	now := time.Now()
	for _, id := range order {
		g := groups[id]
		rec := &models.AggregatedRecord{
			Key:               g.key,
			PeriodEnd:         g.periodEnd,
			TotalApplications: g.applications,
			TotalViews:        g.views,
			TotalClicks:       g.clicks,
			ConversionRate:    conversionRate(g.applications, g.views),
			Metadata:          g.metadata,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := a.store.UpsertAggregatedRecord(ctx, rec); err != nil {
			return fmt.Errorf("upsert aggregated record: %w", err)
		}
	}

	if a.redis != nil {
		a.redis.InvalidateAggregatedSnapshot(ctx, userID)
	}

	a.logger.Info("Aggregated raw metrics", map[string]interface{}{
		"user_id":     userID,
		"period_type": string(periodType),
		"raw_rows":    len(records),
		"buckets":     len(groups),
	})
	return nil
}

// AggregateAllData aggregates every user with raw rows in range across
// all period types. A failure for one user and period combination is
// logged and skipped, never fatal to the batch.
func (a *Aggregator) AggregateAllData(ctx context.Context, dateRange models.DateRange) (int, error) {
	users, err := a.store.ListUsersWithRawMetrics(ctx, dateRange)
	if err != nil {
		return 0, fmt.Errorf("list users with raw metrics: %w", err)
	}

	processed := 0
	for _, userID := range users {
		for _, periodType := range models.AllPeriodTypes {
			if err := a.AggregateData(ctx, userID, periodType, dateRange); err != nil {
				a.logger.Error("Aggregation failed for user and period", map[string]interface{}{
					"user_id":     userID,
					"period_type": string(periodType),
					"error":       err.Error(),
				})
				continue
			}
			processed++
		}
	}

	a.logger.Info("Batch aggregation finished", map[string]interface{}{
		"users":     len(users),
		"processed": processed,
	})
	return processed, nil
}

// UpdateRealTimeAnalytics adds a single event to today's daily bucket.
// This path is additive and intentionally non-idempotent; the batch
// recompute remains authoritative and overwrites whatever this path
// wrote for the same bucket.
func (a *Aggregator) UpdateRealTimeAnalytics(ctx context.Context, userID, platformType, platformName, metricName string, value float64, jobPostingID string) error {
	periodStart, periodEnd := BucketRange(models.PeriodDaily, time.Now())
	key := models.AggregatedKey{
		UserID:       userID,
		PlatformType: platformType,
		PlatformName: platformName,
		JobPostingID: jobPostingID,
		PeriodType:   models.PeriodDaily,
		PeriodStart:  periodStart,
	}

	rec, err := a.store.GetAggregatedRecord(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("get aggregated record: %w", err)
		}
		now := time.Now()
		rec = &models.AggregatedRecord{
			Key:       key,
			PeriodEnd: periodEnd,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	switch metricName {
	case "applications", "total_applications":
		rec.TotalApplications += value
	case "views", "total_views":
		rec.TotalViews += value
	case "clicks", "total_clicks":
		rec.TotalClicks += value
	default:
		return utils.NewValidationError(fmt.Sprintf("unknown metric name %q", metricName))
	}
	rec.ConversionRate = conversionRate(rec.TotalApplications, rec.TotalViews)
	rec.UpdatedAt = time.Now()

	if err := a.store.UpsertAggregatedRecord(ctx, rec); err != nil {
		return fmt.Errorf("upsert aggregated record: %w", err)
	}

	if a.redis != nil {
		a.redis.InvalidateAggregatedSnapshot(ctx, userID)
	}
	return nil
}

// GetAggregatedRecords returns aggregated rows for the control surface,
// going through the redis snapshot when available.
func (a *Aggregator) GetAggregatedRecords(ctx context.Context, userID string, periodType models.PeriodType, dateRange models.DateRange) ([]models.AggregatedRecord, error) {
	if a.redis != nil {
		if cached := a.redis.GetCachedAggregatedSnapshot(ctx, userID, periodType, dateRange); cached != nil {
			filtered := make([]models.AggregatedRecord, 0, len(cached))
			for _, rec := range cached {
				if dateRange.Contains(rec.Key.PeriodStart) {
					filtered = append(filtered, rec)
				}
			}
			return filtered, nil
		}
	}

	records, err := a.store.ListAggregatedRecords(ctx, userID, periodType, dateRange)
	if err != nil {
		return nil, fmt.Errorf("list aggregated records: %w", err)
	}

	if a.redis != nil {
		a.redis.CacheAggregatedSnapshot(ctx, userID, periodType, dateRange, records)
	}
	return records, nil
}

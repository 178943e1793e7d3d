package platform

import (
	"context"
	"fmt"

	"jobpulse/internal/config"
	"jobpulse/internal/store"
	"jobpulse/pkg/models"
)

// ReferralService derives analytics from the referral-tracking collection
// instead of an external API. Each tracked event becomes one raw metric
// row with value 1.
type ReferralService struct {
	baseService
	cfg *config.Config
}

// NewReferralService creates a referral platform service
func NewReferralService(cfg *config.Config, st store.Store, limiter *RateLimiter) *ReferralService {
	return &ReferralService{
		baseService: newBaseService(TypeReferral, NameReferral, st, limiter),
		cfg:         cfg,
	}
}

// Initialize verifies the backing store is reachable
func (s *ReferralService) Initialize(ctx context.Context, cfg *models.PlatformConfig) models.Result {
	if err := s.store.Ping(ctx); err != nil {
		return models.Fail(fmt.Sprintf("referral store unavailable: %v", err))
	}
	s.logger.Info("Referral service initialized")
	return models.Ok()
}

// FetchAnalytics reads referral events in range and converts them to
// raw metric rows ordered by occurred_at.
func (s *ReferralService) FetchAnalytics(ctx context.Context, userID string, dateRange models.DateRange) models.FetchResult {
	if !s.limiter.CheckLimit(s.rateLimitKey(userID)) {
		return models.FetchResult{Result: models.Fail("referral rate limit exceeded")}
	}

	events, err := s.store.QueryReferralEvents(ctx, userID, dateRange)
	if err != nil {
		return models.FetchResult{Result: models.Fail(fmt.Sprintf("failed to query referral events: %v", err))}
	}

	records := make([]models.RawMetricRecord, 0, len(events))
	for _, ev := range events {
		records = append(records, models.RawMetricRecord{
			UserID:       userID,
			JobPostingID: ev.JobPostingID,
			MetricName:   referralMetricName(ev.EventType),
			MetricValue:  1,
			Metadata: map[string]interface{}{
				"source":     NameReferral,
				"event_type": ev.EventType,
				"referrer":   ev.Source,
			},
			RecordedAt: ev.OccurredAt,
		})
	}

	s.logger.Info("Fetched referral analytics", map[string]interface{}{
		"user_id":      userID,
		"record_count": len(records),
	})

	return models.FetchResult{Result: models.Ok(), Records: records}
}

// referralMetricName maps an event type to a canonical metric name
func referralMetricName(eventType string) string {
	switch eventType {
	case "view":
		return "views"
	case "click":
		return "clicks"
	case "application":
		return "applications"
	default:
		return eventType
	}
}

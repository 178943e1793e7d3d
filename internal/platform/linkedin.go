package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/store"
	"jobpulse/pkg/models"
	"jobpulse/pkg/utils"
)

// LinkedInService fetches job analytics from the LinkedIn partner API
type LinkedInService struct {
	baseService
	cfg    *config.Config
	client *http.Client
	apiKey string
}

// NewLinkedInService creates a LinkedIn platform service
func NewLinkedInService(cfg *config.Config, st store.Store, limiter *RateLimiter) *LinkedInService {
	return &LinkedInService{
		baseService: newBaseService(TypeJobBoard, NameLinkedIn, st, limiter),
		cfg:         cfg,
		client: &http.Client{
			Timeout: cfg.Platforms.LinkedIn.Timeout,
		},
	}
}

// Initialize validates the connection settings and selects the API key.
// A per-user config key takes precedence over the process-wide one.
func (s *LinkedInService) Initialize(ctx context.Context, cfg *models.PlatformConfig) models.Result {
	apiKey := s.cfg.Platforms.LinkedIn.APIKey
	if cfg != nil && cfg.APIKey != "" {
		apiKey = cfg.APIKey
	}
	if apiKey == "" {
		return models.Fail("linkedin api key is not configured")
	}
	if s.cfg.Platforms.LinkedIn.BaseURL == "" {
		return models.Fail("linkedin base url is not configured")
	}

	s.apiKey = apiKey
	s.logger.Info("LinkedIn service initialized")
	return models.Ok()
}

// linkedInAnalyticsResponse mirrors the source's native element schema
type linkedInAnalyticsResponse struct {
	Elements []struct {
		JobPostingID string  `json:"jobPostingId"`
		MetricType   string  `json:"metricType"`
		Count        float64 `json:"count"`
		Date         string  `json:"date"`
	} `json:"elements"`
}

// FetchAnalytics pulls job analytics elements for the user and converts
// them to raw metric rows ordered by recorded_at.
func (s *LinkedInService) FetchAnalytics(ctx context.Context, userID string, dateRange models.DateRange) models.FetchResult {
	if s.apiKey == "" {
		return models.FetchResult{Result: models.Fail("linkedin service is not initialized")}
	}
	if !s.limiter.CheckLimit(s.rateLimitKey(userID)) {
		return models.FetchResult{Result: models.Fail("linkedin rate limit exceeded")}
	}

	endpoint := fmt.Sprintf("%s/v2/jobAnalytics?user=%s&start=%d&end=%d",
		s.cfg.Platforms.LinkedIn.BaseURL,
		url.QueryEscape(userID),
		dateRange.Start.UnixMilli(),
		dateRange.End.UnixMilli())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.FetchResult{Result: models.Fail(fmt.Sprintf("failed to build request: %v", err))}
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.FetchResult{Result: models.Fail(utils.NewTransientError(fmt.Sprintf("linkedin request failed: %v", err)).Message)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.FetchResult{Result: models.Fail(fmt.Sprintf("linkedin returned status %d", resp.StatusCode))}
	}

	var payload linkedInAnalyticsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.FetchResult{Result: models.Fail(fmt.Sprintf("failed to decode linkedin response: %v", err))}
	}

	records := make([]models.RawMetricRecord, 0, len(payload.Elements))
	for _, el := range payload.Elements {
		recordedAt, err := time.Parse(time.RFC3339, el.Date)
		if err != nil {
			s.logger.Warn("Skipping element with unparseable date", map[string]interface{}{
				"date": el.Date,
			})
			continue
		}
		records = append(records, models.RawMetricRecord{
			UserID:       userID,
			JobPostingID: el.JobPostingID,
			MetricName:   linkedInMetricName(el.MetricType),
			MetricValue:  el.Count,
			Metadata: map[string]interface{}{
				"source":      NameLinkedIn,
				"metric_type": el.MetricType,
			},
			RecordedAt: recordedAt,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].RecordedAt.Before(records[j].RecordedAt)
	})

	s.logger.Info("Fetched LinkedIn analytics", map[string]interface{}{
		"user_id":      userID,
		"record_count": len(records),
	})

	return models.FetchResult{Result: models.Ok(), Records: records}
}

// linkedInMetricName maps the native metric type to a canonical name
func linkedInMetricName(metricType string) string {
	switch metricType {
	case "IMPRESSION", "JOB_VIEW":
		return "views"
	case "CLICK":
		return "clicks"
	case "APPLICATION", "APPLY":
		return "applications"
	default:
		return metricType
	}
}

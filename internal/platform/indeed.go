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

// IndeedService fetches job analytics from the Indeed employer API
type IndeedService struct {
	baseService
	cfg    *config.Config
	client *http.Client
	apiKey string
}

// NewIndeedService creates an Indeed platform service
func NewIndeedService(cfg *config.Config, st store.Store, limiter *RateLimiter) *IndeedService {
	return &IndeedService{
		baseService: newBaseService(TypeJobBoard, NameIndeed, st, limiter),
		cfg:         cfg,
		client: &http.Client{
			Timeout: cfg.Platforms.Indeed.Timeout,
		},
	}
}

// Initialize validates connection settings for the Indeed API
func (s *IndeedService) Initialize(ctx context.Context, cfg *models.PlatformConfig) models.Result {
	apiKey := s.cfg.Platforms.Indeed.APIKey
	if cfg != nil && cfg.APIKey != "" {
		apiKey = cfg.APIKey
	}
	if apiKey == "" {
		return models.Fail("indeed api key is not configured")
	}
	if s.cfg.Platforms.Indeed.BaseURL == "" {
		return models.Fail("indeed base url is not configured")
	}

	s.apiKey = apiKey
	s.logger.Info("Indeed service initialized")
	return models.Ok()
}

// indeedStatsResponse mirrors the source's native row schema
type indeedStatsResponse struct {
	Data []struct {
		JobID     string  `json:"job_id"`
		Metric    string  `json:"metric"`
		Value     float64 `json:"value"`
		Timestamp int64   `json:"timestamp"` // unix seconds
	} `json:"data"`
}

// FetchAnalytics pulls employer stats rows for the user and converts
// them to raw metric rows ordered by recorded_at.
func (s *IndeedService) FetchAnalytics(ctx context.Context, userID string, dateRange models.DateRange) models.FetchResult {
	if s.apiKey == "" {
		return models.FetchResult{Result: models.Fail("indeed service is not initialized")}
	}
	if !s.limiter.CheckLimit(s.rateLimitKey(userID)) {
		return models.FetchResult{Result: models.Fail("indeed rate limit exceeded")}
	}

	endpoint := fmt.Sprintf("%s/v1/employer/stats?account=%s&from=%d&to=%d",
		s.cfg.Platforms.Indeed.BaseURL,
		url.QueryEscape(userID),
		dateRange.Start.Unix(),
		dateRange.End.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.FetchResult{Result: models.Fail(fmt.Sprintf("failed to build request: %v", err))}
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.FetchResult{Result: models.Fail(utils.NewTransientError(fmt.Sprintf("indeed request failed: %v", err)).Message)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.FetchResult{Result: models.Fail(fmt.Sprintf("indeed returned status %d", resp.StatusCode))}
	}

	var payload indeedStatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.FetchResult{Result: models.Fail(fmt.Sprintf("failed to decode indeed response: %v", err))}
	}

	records := make([]models.RawMetricRecord, 0, len(payload.Data))
	for _, row := range payload.Data {
		records = append(records, models.RawMetricRecord{
			UserID:       userID,
			JobPostingID: row.JobID,
			MetricName:   indeedMetricName(row.Metric),
			MetricValue:  row.Value,
			Metadata: map[string]interface{}{
				"source": NameIndeed,
				"metric": row.Metric,
			},
			RecordedAt: time.Unix(row.Timestamp, 0).UTC(),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].RecordedAt.Before(records[j].RecordedAt)
	})

	s.logger.Info("Fetched Indeed analytics", map[string]interface{}{
		"user_id":      userID,
		"record_count": len(records),
	})

	return models.FetchResult{Result: models.Ok(), Records: records}
}

// indeedMetricName maps the native metric name to a canonical name
func indeedMetricName(metric string) string {
	switch metric {
	case "impressions", "organic_impressions":
		return "views"
	case "clicks", "sponsored_clicks":
		return "clicks"
	case "applies", "applications_started":
		return "applications"
	default:
		return metric
	}
}

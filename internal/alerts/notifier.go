package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/logging"
)

// Alert is the payload delivered to the notification webhook
type Alert struct {
	Kind      string                 `json:"kind"`
	JobID     string                 `json:"job_id,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Notifier delivers alerts to an external webhook. When no webhook is
// configured or alerts are disabled, every send is a logged no-op.
type Notifier struct {
	webhookURL string
	maxRetries int
	enabled    bool
	client     *http.Client
	logger     logging.Logger
}

// NewNotifier creates a webhook notifier from the alerts configuration
func NewNotifier(cfg *config.Config) *Notifier {
	timeout := cfg.Alerts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.Alerts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Notifier{
		webhookURL: cfg.Alerts.WebhookURL,
		maxRetries: maxRetries,
		enabled:    cfg.Alerts.Enabled && cfg.Alerts.WebhookURL != "",
		client:     &http.Client{Timeout: timeout},
		logger:     logging.GetGlobalLogger().WithField("component", "alert_notifier"),
	}
}

// SendPermanentFailure emits the alert for a job whose retries are
// exhausted and now awaits a manual trigger.
func (n *Notifier) SendPermanentFailure(ctx context.Context, jobID, errMsg string, retryCount int) {
	n.Send(ctx, Alert{
		Kind:    "permanent_failure",
		JobID:   jobID,
		Message: fmt.Sprintf("job %s failed permanently after %d retries", jobID, retryCount),
		Details: map[string]interface{}{
			"error":       errMsg,
			"retry_count": retryCount,
		},
		Timestamp: time.Now(),
	})
}

// Send delivers one alert with bounded retries. Delivery is best-effort:
// failures are logged, never surfaced to the caller.
func (n *Notifier) Send(ctx context.Context, alert Alert) {
	if !n.enabled {
		n.logger.Debug("Alert delivery skipped, notifier disabled", map[string]interface{}{
			"kind":   alert.Kind,
			"job_id": alert.JobID,
		})
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		n.logger.Error("Failed to marshal alert payload", map[string]interface{}{
			"kind":  alert.Kind,
			"error": err.Error(),
		})
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				n.logger.Warn("Alert delivery abandoned", map[string]interface{}{
					"kind":   alert.Kind,
					"job_id": alert.JobID,
					"error":  ctx.Err().Error(),
				})
				return
			}
		}

		if lastErr = n.post(ctx, payload); lastErr == nil {
			n.logger.Info("Alert delivered", map[string]interface{}{
				"kind":    alert.Kind,
				"job_id":  alert.JobID,
				"attempt": attempt + 1,
			})
			return
		}
	}

	n.logger.Error("Alert delivery failed after retries", map[string]interface{}{
		"kind":   alert.Kind,
		"job_id": alert.JobID,
		"error":  lastErr.Error(),
	})
}

func (n *Notifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertStaleSnapshot  AlertType = "stale_snapshot"
	AlertNoSnapshot     AlertType = "no_snapshot"
)

// Alert is a single webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a HealthSnapshot against configured thresholds and
// posts breaches to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts triggered by h.
func (a *Alerter) Evaluate(h *HealthSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := h.RunsComplete + h.RunsFailed
	if finished >= 3 && h.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Analytics run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				h.FailRate*100, a.cfg.FailureRateThreshold*100, h.RunsFailed, finished, h.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": h.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"last_error":   h.LastError,
			},
			Timestamp: now,
		})
	}

	switch {
	case !h.HasSnapshot:
		alerts = append(alerts, Alert{
			Type:      AlertNoSnapshot,
			Severity:  "medium",
			Message:   "No analytics snapshot has been published",
			Timestamp: now,
		})
	case a.cfg.StaleSnapshotHours > 0 && h.SnapshotAge > time.Duration(a.cfg.StaleSnapshotHours)*time.Hour:
		alerts = append(alerts, Alert{
			Type:     AlertStaleSnapshot,
			Severity: "medium",
			Message: fmt.Sprintf("Published snapshot %s is %.1fh old (threshold %dh)",
				h.SnapshotRun, h.SnapshotAge.Hours(), a.cfg.StaleSnapshotHours),
			Details: map[string]any{
				"run_id":    h.SnapshotRun,
				"age_hours": h.SnapshotAge.Hours(),
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL and returns the
// number sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

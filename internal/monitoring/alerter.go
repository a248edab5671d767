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

	"github.com/sells-group/lead-pipeline/internal/config"
	"github.com/sells-group/lead-pipeline/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCostOverrun     AlertType = "cost_overrun"
	AlertDurationOverrun AlertType = "duration_overrun"
	AlertRunErrors       AlertType = "run_errors"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Thresholds are the limits a finished run is checked against. Zero
// disables a check.
type Thresholds struct {
	CostUSD   float64
	Duration  time.Duration
	MaxErrors int
}

// ThresholdsFromConfig derives alert thresholds from the run and
// monitoring sections.
func ThresholdsFromConfig(run config.RunConfig, mon config.MonitoringConfig) Thresholds {
	return Thresholds{
		CostUSD:   run.CostAlertThresholdUSD,
		Duration:  time.Duration(run.PipelineTimeoutMinutes) * time.Minute,
		MaxErrors: mon.MaxErrors,
	}
}

// Alerter evaluates a finished run against thresholds and sends alerts via
// webhook when thresholds are breached.
type Alerter struct {
	webhookURL string
	th         Thresholds
	client     *http.Client
}

// NewAlerter creates a new Alerter.
func NewAlerter(webhookURL string, th Thresholds) *Alerter {
	return &Alerter{
		webhookURL: webhookURL,
		th:         th,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks run against thresholds and returns any alerts.
func (a *Alerter) Evaluate(run *model.RunHistory) []Alert {
	if run == nil {
		return nil
	}
	var alerts []Alert
	now := time.Now().UTC()

	if a.th.CostUSD > 0 && run.CostEstimateUSD > a.th.CostUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run cost $%.2f exceeds threshold $%.2f",
				run.CostEstimateUSD, a.th.CostUSD,
			),
			Details: map[string]any{
				"run_id":        run.ID,
				"cost_usd":      run.CostEstimateUSD,
				"threshold_usd": a.th.CostUSD,
			},
			Timestamp: now,
		})
	}

	elapsed := time.Duration(run.DurationSeconds) * time.Second
	if a.th.Duration > 0 && elapsed > a.th.Duration {
		alerts = append(alerts, Alert{
			Type:     AlertDurationOverrun,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Run took %s, over the %s budget",
				elapsed, a.th.Duration,
			),
			Details: map[string]any{
				"run_id":           run.ID,
				"duration_seconds": run.DurationSeconds,
				"budget_seconds":   int(a.th.Duration.Seconds()),
			},
			Timestamp: now,
		})
	}

	if a.th.MaxErrors > 0 && len(run.Errors) >= a.th.MaxErrors {
		alerts = append(alerts, Alert{
			Type:     AlertRunErrors,
			Severity: "medium",
			Message:  fmt.Sprintf("Run recorded %d error(s)", len(run.Errors)),
			Details: map[string]any{
				"run_id": run.ID,
				"errors": len(run.Errors),
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if len(alerts) == 0 {
		return 0
	}
	if a.webhookURL == "" {
		for _, alert := range alerts {
			zap.L().Warn("monitoring: alert",
				zap.String("type", string(alert.Type)),
				zap.String("message", alert.Message),
			)
		}
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := postJSON(ctx, a.client, a.webhookURL, alert); err != nil {
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

// postJSON posts v to url as JSON.
func postJSON(ctx context.Context, client *http.Client, url string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

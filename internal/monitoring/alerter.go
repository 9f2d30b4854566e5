package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/config"
	"github.com/genx3d/genx3d/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertGenerationFailureRate AlertType = "generation_failure_rate"
	AlertCircuitOpen           AlertType = "circuit_open"
	AlertModelDiskUsage        AlertType = "model_disk_usage"
)

// minFinished is the sample size below which the failure rate is not judged.
const minFinished = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns health snapshots into alerts and posts them to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates an Alerter. Without a webhook URL alerts are only
// evaluated, never sent.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 200 * time.Millisecond,
			OnRetry:        resilience.RetryLogger("alert_webhook", "send"),
		},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if a.cfg.FailureRateThreshold > 0 && snap.GenerationsTotal >= minFinished && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertGenerationFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Generation failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d in last %dm)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.GenerationsFail, snap.GenerationsTotal, snap.LookbackMins,
			),
			Details: map[string]any{
				"fail_rate":    snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.GenerationsFail,
				"total":        snap.GenerationsTotal,
				"avg_attempts": snap.AvgAttempts,
			},
			Timestamp: now,
		})
	}

	if len(snap.OpenCircuits) > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertCircuitOpen,
			Severity:  "medium",
			Message:   "Circuit open for backend(s): " + strings.Join(snap.OpenCircuits, ", "),
			Details:   map[string]any{"backends": snap.OpenCircuits},
			Timestamp: now,
		})
	}

	if limit := int64(a.cfg.MaxModelMB) << 20; limit > 0 && snap.ModelBytes > limit {
		alerts = append(alerts, Alert{
			Type:     AlertModelDiskUsage,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Temp-model area holds %.1f MB in %d files, above %g MB",
				float64(snap.ModelBytes)/(1<<20), snap.ModelCount, a.cfg.MaxModelMB,
			),
			Details: map[string]any{
				"model_bytes": snap.ModelBytes,
				"model_count": snap.ModelCount,
				"limit_mb":    a.cfg.MaxModelMB,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts posts each alert to the webhook, retrying 5xx responses once.
// It returns the number delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		_, err := resilience.Do(ctx, a.retry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, a.post(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: alert not delivered",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{Service: "genx3d", Alert: alert})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "monitoring: post webhook"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		err := eris.Errorf("monitoring: webhook answered %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}

// webhookPayload is the JSON body posted per alert.
type webhookPayload struct {
	Service string `json:"service"`
	Alert
}

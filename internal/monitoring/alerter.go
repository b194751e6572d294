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

	"github.com/FelipeFraul/buscai-v2-sub002/internal/config"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate  AlertType = "run_failure_rate"
	AlertStuckRuns       AlertType = "stuck_runs"
	AlertRecordErrorRate AlertType = "record_error_rate"
	AlertConflictBacklog AlertType = "conflict_backlog"
)

// Severity levels attached to alerts.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Rates are only judged over enough samples.
const (
	minFinishedForRate     = 5
	minRecordsForErrorRate = 20
)

// Alert is one breached threshold.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// webhookPayload is the body posted for one alert batch.
type webhookPayload struct {
	Source string  `json:"source"`
	Alerts []Alert `json:"alerts"`
}

// rule inspects a snapshot and reports a message and details when breached.
type rule struct {
	typ      AlertType
	severity string
	check    func(cfg config.MonitoringConfig, snap *MetricsSnapshot) (string, map[string]any, bool)
}

var rules = []rule{
	{AlertRunFailureRate, SeverityHigh, checkRunFailureRate},
	{AlertStuckRuns, SeverityHigh, checkStuckRuns},
	{AlertRecordErrorRate, SeverityMedium, checkRecordErrorRate},
	{AlertConflictBacklog, SeverityLow, checkConflictBacklog},
}

func checkRunFailureRate(cfg config.MonitoringConfig, snap *MetricsSnapshot) (string, map[string]any, bool) {
	finished := snap.RunsDone + snap.RunsFailed
	if finished < minFinishedForRate || snap.RunFailRate <= cfg.FailureRateThreshold {
		return "", nil, false
	}
	msg := fmt.Sprintf("Import failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
		snap.RunFailRate*100, cfg.FailureRateThreshold*100, snap.RunsFailed, finished, snap.LookbackHours)
	return msg, map[string]any{
		"failure_rate": snap.RunFailRate,
		"threshold":    cfg.FailureRateThreshold,
		"failed":       snap.RunsFailed,
		"finished":     finished,
	}, true
}

func checkStuckRuns(cfg config.MonitoringConfig, snap *MetricsSnapshot) (string, map[string]any, bool) {
	if snap.RunsStuck == 0 {
		return "", nil, false
	}
	msg := fmt.Sprintf("%d import run(s) pending or running for more than %d minutes", snap.RunsStuck, cfg.StuckRunMins)
	return msg, map[string]any{"stuck": snap.RunsStuck, "in_flight": snap.RunsInFlight}, true
}

func checkRecordErrorRate(cfg config.MonitoringConfig, snap *MetricsSnapshot) (string, map[string]any, bool) {
	if cfg.RecordErrorRateThreshold <= 0 || snap.Records.Found < minRecordsForErrorRate ||
		snap.RecordErrorRate <= cfg.RecordErrorRateThreshold {
		return "", nil, false
	}
	msg := fmt.Sprintf("Record error rate %.1f%% exceeds threshold %.1f%% (%d errors / %d found in last %dh)",
		snap.RecordErrorRate*100, cfg.RecordErrorRateThreshold*100, snap.Records.Errors, snap.Records.Found, snap.LookbackHours)
	return msg, map[string]any{
		"error_rate": snap.RecordErrorRate,
		"threshold":  cfg.RecordErrorRateThreshold,
		"errors":     snap.Records.Errors,
		"found":      snap.Records.Found,
	}, true
}

func checkConflictBacklog(cfg config.MonitoringConfig, snap *MetricsSnapshot) (string, map[string]any, bool) {
	if cfg.ConflictBacklogThreshold <= 0 || snap.ConflictBacklog <= cfg.ConflictBacklogThreshold {
		return "", nil, false
	}
	msg := fmt.Sprintf("%d records awaiting review exceed backlog threshold %d", snap.ConflictBacklog, cfg.ConflictBacklogThreshold)
	return msg, map[string]any{"backlog": snap.ConflictBacklog, "threshold": cfg.ConflictBacklogThreshold}, true
}

// Alerter turns snapshots into alerts and posts them to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter builds an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	retry := resilience.WithRetries(2)
	retry.OnRetry = resilience.RetryLogger("webhook", "send_alerts")
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Evaluate returns one alert per breached rule, in rule order.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := time.Now().UTC()
	var alerts []Alert
	for _, r := range rules {
		msg, details, breached := r.check(a.cfg, snap)
		if !breached {
			continue
		}
		alerts = append(alerts, Alert{
			Type:      r.typ,
			Severity:  r.severity,
			Message:   msg,
			Details:   details,
			Timestamp: now,
		})
	}
	return alerts
}

// SendAlerts posts alerts to the webhook as a single batch and returns how
// many were delivered. Without a webhook nothing is sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	body, err := json.Marshal(webhookPayload{Source: "buscai-import", Alerts: alerts})
	if err != nil {
		zap.L().Error("monitoring: marshal alerts", zap.Error(err))
		return 0
	}

	err = resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		return a.post(ctx, body)
	})
	if err != nil {
		zap.L().Error("monitoring: deliver alerts",
			zap.Int("alerts", len(alerts)),
			zap.Error(err),
		)
		return 0
	}

	for _, alert := range alerts {
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
	}
	return len(alerts)
}

func (a *Alerter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return resilience.ClassifyResponse(
			eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode),
			resp,
		)
	}
	return nil
}

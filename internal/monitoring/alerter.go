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

	"github.com/sells-group/floodcover/internal/config"
	"github.com/sells-group/floodcover/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFetchFailureRate AlertType = "fetch_failure_rate"
	AlertStaleReadings    AlertType = "stale_readings"
	AlertProviderCircuit  AlertType = "provider_circuit_open"
)

// minAttempts is the number of fetches needed before the failure rate is judged.
const minAttempts = 5

// Alert is the webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns a MetricsSnapshot into alerts and delivers them to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts the snapshot breaches, in a fixed order.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	attempts := snap.SuccessfulFetches + snap.FailedFetches
	if attempts >= minAttempts && snap.FetchFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFetchFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Provider fetch failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempts)",
				snap.FetchFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.FailedFetches, attempts,
			),
			Details: map[string]any{
				"failure_rate": snap.FetchFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.FailedFetches,
				"attempts":     attempts,
			},
			Timestamp: now,
		})
	}

	// A paused oracle is expected to go stale.
	staleAfter := time.Duration(a.cfg.StaleAfterSecs) * time.Second
	if staleAfter > 0 && !snap.IsPaused && snap.NewestReadingAt != nil {
		age := snap.CollectedAt.Sub(*snap.NewestReadingAt)
		if age > staleAfter {
			alerts = append(alerts, Alert{
				Type:     AlertStaleReadings,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Newest cached reading is %s old (limit %s) across %d location(s)",
					age.Truncate(time.Second), staleAfter, snap.CachedLocations,
				),
				Details: map[string]any{
					"newest_reading_at": snap.NewestReadingAt.Format(time.RFC3339),
					"age_seconds":       int64(age.Seconds()),
					"stale_after_secs":  a.cfg.StaleAfterSecs,
				},
				Timestamp: now,
			})
		}
	}

	if snap.BreakerState == "open" {
		alerts = append(alerts, Alert{
			Type:     AlertProviderCircuit,
			Severity: "high",
			Message:  fmt.Sprintf("Provider circuit breaker is open (%d trips)", snap.BreakerTrips),
			Details: map[string]any{
				"trips": snap.BreakerTrips,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts posts each alert to the webhook and returns how many were
// accepted. 5xx and 429 responses are retried once.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	log := zap.L().With(zap.String("component", "monitoring.alerter"))
	sent := 0
	for _, alert := range alerts {
		body, err := json.Marshal(alert)
		if err != nil {
			log.Error("alert not encodable", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		err = resilience.Do(ctx, webhookRetry, func(ctx context.Context) error {
			return a.post(ctx, body)
		})
		if err != nil {
			log.Error("alert delivery failed", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		log.Info("alert delivered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

var webhookRetry = resilience.RetryConfig{
	MaxAttempts:    2,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     time.Second,
}

func (a *Alerter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "floodcover-alerter")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "webhook post")
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return resilience.NewTransientError(eris.Errorf("webhook status %d", resp.StatusCode), resp.StatusCode)
	default:
		return eris.Errorf("webhook status %d", resp.StatusCode)
	}
}

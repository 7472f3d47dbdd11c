package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcover/internal/config"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, FailureRateThreshold: 0.10}
	checker := NewChecker(newFakeCollector(), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(newFakeCollector(), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.NotNil(t, checker)

	// Start and immediately cancel to verify it doesn't panic.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsTriggeredAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer srv.Close()

	// Fake collector: 2 of 8 fetches failed and the newest reading is 10 minutes old.
	cfg := config.MonitoringConfig{FailureRateThreshold: 0.2, StaleAfterSecs: 300, WebhookURL: srv.URL}
	checker := NewChecker(newFakeCollector(), NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background())
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertFetchFailureRate, alerts[0].Type)
	assert.Equal(t, AlertStaleReadings, alerts[1].Type)
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_CheckQuiet(t *testing.T) {
	cfg := config.MonitoringConfig{FailureRateThreshold: 0.5, StaleAfterSecs: 3600}
	checker := NewChecker(newFakeCollector(), NewAlerter(cfg), cfg)
	assert.Empty(t, checker.Check(context.Background()))
}

func TestChecker_DeliversOnlyOnRaise(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{FailureRateThreshold: 0.2, WebhookURL: srv.URL}
	checker := NewChecker(newFakeCollector(), NewAlerter(cfg), cfg)

	require.Len(t, checker.Check(context.Background()), 1)
	require.Len(t, checker.Check(context.Background()), 1, "still firing")
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_RedeliversAfterClear(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{FailureRateThreshold: 0.2, WebhookURL: srv.URL}
	checker := NewChecker(newFakeCollector(), NewAlerter(cfg), cfg)
	checker.Check(context.Background())

	checker.alerter.cfg.FailureRateThreshold = 0.9
	assert.Empty(t, checker.Check(context.Background()))

	checker.alerter.cfg.FailureRateThreshold = 0.2
	checker.Check(context.Background())
	assert.Equal(t, int32(2), received.Load())
}

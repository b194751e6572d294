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

	"github.com/FelipeFraul/buscai-v2-sub002/internal/config"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(newTestCollector(&fakeRuns{}), NewAlerter(cfg), cfg)

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
	checker := NewChecker(newTestCollector(&fakeRuns{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.NotNil(t, checker)

	assert.Equal(t, 5*time.Minute, checker.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_Check_SendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{
		WebhookURL:          ts.URL,
		LookbackWindowHours: 24,
		StuckRunMins:        30,
	}
	f := &fakeRuns{runs: []importer.Run{
		{ID: "r1", Status: importer.RunPending, CreatedAt: collectNow.Add(-time.Hour)},
	}}
	checker := NewChecker(newTestCollector(f), NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background())
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStuckRuns, alerts[0].Type)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_Check_CollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(newTestCollector(&fakeRuns{listErr: assert.AnError}), NewAlerter(cfg), cfg)

	assert.Nil(t, checker.Check(context.Background()))
}

func TestChecker_Check_SuppressesRepeats(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{
		WebhookURL:          ts.URL,
		LookbackWindowHours: 24,
		StuckRunMins:        30,
	}
	f := &fakeRuns{runs: []importer.Run{
		{ID: "r1", Status: importer.RunRunning, CreatedAt: collectNow.Add(-time.Hour)},
	}}
	checker := NewChecker(newTestCollector(f), NewAlerter(cfg), cfg)
	clock := collectNow
	checker.now = func() time.Time { return clock }

	require.Len(t, checker.Check(context.Background()), 1)
	require.Len(t, checker.Check(context.Background()), 1)
	assert.Equal(t, int32(1), received.Load())

	clock = clock.Add(DefaultRepeatAfter)
	checker.Check(context.Background())
	assert.Equal(t, int32(2), received.Load())
}

package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-waterfall/internal/config"
	"github.com/sells-group/enrich-waterfall/internal/metrics"
	"github.com/sells-group/enrich-waterfall/internal/model"
	"github.com/sells-group/enrich-waterfall/internal/store"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(NewCollector(store.NewMemory()), NewAlerter(cfg), cfg)

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
	checker := NewChecker(NewCollector(store.NewMemory()), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.NotNil(t, checker)

	// Zero interval falls back to the default; a cancelled context returns at once.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_Check(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	st := store.NewMemory()
	for range 5 {
		seedJob(t, st, "acme", time.Hour, model.JobStatusFailed, 0)
	}
	seedJob(t, st, "acme", time.Hour, model.JobStatusCompleted, 0.05)

	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.5,
	}
	before := testutil.ToFloat64(metrics.AlertsTriggeredTotal.WithLabelValues(string(AlertJobFailureRate)))

	checker := NewChecker(newCollector(st), NewAlerter(cfg), cfg)
	res, err := checker.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, res.Snapshot.JobsTotal)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, AlertJobFailureRate, res.Alerts[0].Type)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, int32(1), received.Load())
	assert.InDelta(t, before+1, testutil.ToFloat64(metrics.AlertsTriggeredTotal.WithLabelValues(string(AlertJobFailureRate))), 1e-9)
}

func TestChecker_CheckQuiet(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24, FailureRateThreshold: 0.5}
	checker := NewChecker(newCollector(store.NewMemory()), NewAlerter(cfg), cfg)

	res, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)
	assert.Zero(t, res.Sent)
}

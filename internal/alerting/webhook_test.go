package alerting

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

type capturedBatch struct {
	Alerts []Alert `json:"alerts"`
	Count  int     `json:"count"`
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []capturedBatch) {
	t.Helper()
	var mu sync.Mutex
	var batches []capturedBatch

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch capturedBatch
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		mu.Lock()
		batches = append(batches, batch)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedBatch {
		mu.Lock()
		defer mu.Unlock()
		out := make([]capturedBatch, len(batches))
		copy(out, batches)
		return out
	}
}

func riskyAssessment(score float64) model.RiskAssessment {
	return model.RiskAssessment{
		Protocol:         "aave_v3",
		Address:          "0xabc",
		OverallRiskScore: score,
		HealthStatus:     model.HealthAtRisk,
	}
}

func TestNotifier_ThresholdAlert(t *testing.T) {
	server, batches := newCaptureServer(t)
	n := NewNotifier(Config{WebhookURL: server.URL, RiskThreshold: 75, FlushInterval: time.Hour})
	defer n.Stop()

	n.ObserveAssessment(riskyAssessment(80))
	n.ObserveAssessment(riskyAssessment(50)) // below threshold, no alert
	require.Equal(t, 1, n.Pending())

	n.Stop()

	got := batches()
	require.Len(t, got, 1)
	require.Equal(t, 1, got[0].Count)
	assert.Equal(t, KindRiskThreshold, got[0].Alerts[0].Kind)
	assert.Equal(t, 80.0, got[0].Alerts[0].RiskScore)
	assert.NotEmpty(t, got[0].Alerts[0].ID)
}

func TestNotifier_LiquidationAlertOverridesThreshold(t *testing.T) {
	n := NewNotifier(Config{RiskThreshold: 75, FlushInterval: time.Hour})
	defer n.Stop()

	a := riskyAssessment(95)
	a.HealthStatus = model.HealthCritical
	a.LiquidationRisk = model.LiquidationRisk{Probability: 1.0}
	n.ObserveAssessment(a)

	require.Equal(t, 1, n.Pending())
}

func TestNotifier_FullBatchFlushesImmediately(t *testing.T) {
	server, batches := newCaptureServer(t)
	n := NewNotifier(Config{WebhookURL: server.URL, BatchSize: 2, FlushInterval: time.Hour})
	defer n.Stop()

	n.SystemAlert(model.SeverityHigh, "database pool exhausted")
	n.SystemAlert(model.SeverityHigh, "database pool exhausted")

	assert.Eventually(t, func() bool {
		got := batches()
		return len(got) == 1 && got[0].Count == 2
	}, time.Second, 10*time.Millisecond)
}

func TestNotifier_NoWebhookOnlyLogs(t *testing.T) {
	n := NewNotifier(Config{FlushInterval: time.Hour})

	n.SystemAlert(model.SeverityLow, "something minor")
	require.Equal(t, 1, n.Pending())

	n.Stop()
	assert.Equal(t, 0, n.Pending())
}

package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-pipeline/internal/config"
	"github.com/sells-group/lead-pipeline/internal/model"
)

func defaultThresholds() Thresholds {
	return Thresholds{CostUSD: 75, Duration: 120 * time.Minute, MaxErrors: 5}
}

func TestThresholdsFromConfig(t *testing.T) {
	th := ThresholdsFromConfig(
		config.RunConfig{CostAlertThresholdUSD: 75, PipelineTimeoutMinutes: 120},
		config.MonitoringConfig{MaxErrors: 5},
	)
	assert.Equal(t, defaultThresholds(), th)
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter("", defaultThresholds())

	alerts := a.Evaluate(&model.RunHistory{
		CostEstimateUSD: 12.40,
		DurationSeconds: 1800,
		Errors:          []string{"decision_makers: hunter timeout"},
	})
	assert.Empty(t, alerts)
	assert.Nil(t, a.Evaluate(nil))
}

func TestAlerter_Evaluate_CostOverrun(t *testing.T) {
	a := NewAlerter("", defaultThresholds())

	alerts := a.Evaluate(&model.RunHistory{ID: "run-1", CostEstimateUSD: 80.25})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCostOverrun, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "$80.25")
}

func TestAlerter_Evaluate_DurationOverrun(t *testing.T) {
	a := NewAlerter("", defaultThresholds())

	alerts := a.Evaluate(&model.RunHistory{DurationSeconds: 121 * 60})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDurationOverrun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "2h1m0s")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter("", defaultThresholds())

	alerts := a.Evaluate(&model.RunHistory{
		CostEstimateUSD: 100,
		DurationSeconds: 3 * 60 * 60,
		Errors:          []string{"a", "b", "c", "d", "e"},
	})
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertCostOverrun])
	assert.True(t, types[AlertDurationOverrun])
	assert.True(t, types[AlertRunErrors])
}

func TestAlerter_Evaluate_ZeroThresholds(t *testing.T) {
	a := NewAlerter("", Thresholds{})

	alerts := a.Evaluate(&model.RunHistory{
		CostEstimateUSD: 999,
		DurationSeconds: 99999,
		Errors:          []string{"x"},
	})
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(ts.URL, defaultThresholds())

	alerts := []Alert{
		{Type: AlertCostOverrun, Severity: "high", Message: "test alert 1"},
		{Type: AlertDurationOverrun, Severity: "medium", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter("", defaultThresholds())

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertCostOverrun, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter("http://example.com", defaultThresholds())

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(ts.URL, defaultThresholds())

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunErrors, Message: "test"}})
	assert.Equal(t, 0, sent)
}

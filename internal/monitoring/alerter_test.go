package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genx3d/genx3d/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.5,
		MaxModelMB:           100,
	})

	snap := &MetricsSnapshot{
		GenerationsTotal: 20,
		GenerationsOK:    18,
		GenerationsFail:  2,
		FailRate:         0.1,
		ModelBytes:       10 << 20,
		LookbackMins:     60,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5})

	snap := &MetricsSnapshot{
		GenerationsTotal: 10,
		GenerationsOK:    3,
		GenerationsFail:  7,
		FailRate:         0.7,
		AvgAttempts:      2.6,
		LookbackMins:     60,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertGenerationFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "70.0%")
}

func TestAlerter_Evaluate_MinimumSample(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.1})

	snap := &MetricsSnapshot{GenerationsTotal: 2, GenerationsFail: 2, FailRate: 1}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_CircuitOpen(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	alerts := a.Evaluate(&MetricsSnapshot{OpenCircuits: []string{"llm", "remote_index"}})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCircuitOpen, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "llm, remote_index")
}

func TestAlerter_Evaluate_DiskUsage(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{MaxModelMB: 1})

	alerts := a.Evaluate(&MetricsSnapshot{ModelBytes: 3 << 20, ModelCount: 4})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertModelDiskUsage, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "3.0 MB in 4 files")

	// Zero limit disables the check.
	a = NewAlerter(config.MonitoringConfig{})
	assert.Empty(t, a.Evaluate(&MetricsSnapshot{ModelBytes: 1 << 40}))
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.2, MaxModelMB: 1})

	snap := &MetricsSnapshot{
		GenerationsTotal: 10,
		GenerationsFail:  5,
		FailRate:         0.5,
		OpenCircuits:     []string{"llm"},
		ModelBytes:       2 << 20,
	}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 3)
	assert.Equal(t, AlertGenerationFailureRate, alerts[0].Type)
	assert.Equal(t, AlertCircuitOpen, alerts[1].Type)
	assert.Equal(t, AlertModelDiskUsage, alerts[2].Type)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertGenerationFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertCircuitOpen, Severity: "medium", Message: "test alert 2"},
	}

	assert.Equal(t, 2, a.SendAlerts(context.Background(), alerts))
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertCircuitOpen}}))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertCircuitOpen}}))
}

func TestAlerter_SendAlerts_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "genx3d", body["service"])
		assert.Equal(t, string(AlertCircuitOpen), body["type"])
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	assert.Equal(t, 1, a.SendAlerts(context.Background(), []Alert{{Type: AlertCircuitOpen}}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlerter_SendAlerts_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertCircuitOpen}}))
	assert.Equal(t, int32(1), calls.Load())
}

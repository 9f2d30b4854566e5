package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/modelstore"
	"github.com/genx3d/genx3d/internal/resilience"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(nil, nil, time.Hour)
	m := NewMetrics(reg).WithCollector(c)

	m.ObserveGeneration(model.GenerationResult{Status: model.StatusSuccess, Success: true, Attempts: 1})
	m.ObserveGeneration(model.GenerationResult{Status: model.StatusFailure, Attempts: 3})
	m.RetrievalResults(model.SourceLocal, 3)
	m.RetrievalResults(model.SourceRemote, 0)
	m.BackendError("remote_index")
	m.ObserveStage("execute", 20*time.Millisecond, true)
	m.ObserveSweep(modelstore.SweepStats{Deleted: 4})
	m.BreakerChanged(resilience.BackendLLM, resilience.CircuitClosed, resilience.CircuitOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.retrievalResults.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendErrors.WithLabelValues("remote_index")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.modelsSwept))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("llm")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageLatency))

	snap, err := c.Collect()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.GenerationsTotal)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveGeneration(model.GenerationResult{})
		m.RetrievalResults(model.SourceLocal, 1)
		m.BackendError("llm")
		m.ObserveStage("retrieve", time.Second, false)
		m.ObserveSweep(modelstore.SweepStats{})
		m.BreakerChanged(resilience.BackendLLM, 0, 1)
	})
}

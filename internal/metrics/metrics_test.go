package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCount(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveGeneration("success", 20*time.Millisecond)
	m.ObserveGeneration("success", 0)
	m.ObserveGeneration("failure", time.Second)
	m.ObserveAttempt("retryable_error")
	m.RetrievalError()
	m.TrackingError("start")
	m.TrackingError("start")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.generations.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmAttempts.WithLabelValues("retryable_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievalErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.trackingErrors.WithLabelValues("start")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveGeneration("success", time.Second)
		m.ObserveAttempt("success")
		m.RetrievalError()
		m.TrackingError("end")
	})
}

package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_Report(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordFetchAttempt("news", 10*time.Millisecond, true)
	m.RecordFetchAttempt("news", 30*time.Millisecond, false)
	m.RecordFetchAttempt("alert", 20*time.Millisecond, true)
	m.RecordSourceOutcome("ok")
	m.RecordSourceOutcome("failed")
	m.RecordSummarization(50*time.Millisecond, true)
	m.RecordDelivery(true)
	m.RecordDelivery(false)

	report := m.GetReport()
	require.Equal(t, int64(3), report.FetchStats.Attempts)
	require.Equal(t, int64(1), report.FetchStats.Failures)
	require.Equal(t, int64(2), report.FetchStats.ByKind["news"])
	require.Equal(t, int64(20), report.FetchStats.AverageLatency)
	require.Equal(t, int64(1), report.FetchStats.Outcomes["failed"])
	require.Equal(t, int64(1), report.SummaryStats.Degraded)
	require.Equal(t, int64(2), report.DeliveryStats.Total)
	require.Equal(t, int64(1), report.DeliveryStats.Failed)

	LogMetrics(m)
}

func TestMetricsCollector_NilSafe(t *testing.T) {
	var m *MetricsCollector
	m.RecordFetchAttempt("news", time.Millisecond, true)
	m.RecordSourceOutcome("ok")
	m.RecordSummarization(time.Millisecond, false)
	m.RecordDelivery(true)
	LogMetrics(m)
}

package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("report:daily_sales").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("report:daily_sales").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("report:daily_sales", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("report:daily_sales", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("report:daily_sales")))
}

func TestLowStockGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetLowStock(4)
	require.Equal(t, 4.0, testutil.ToFloat64(m.lowStock))
	m.SetLowStock(0)
	require.Equal(t, 0.0, testutil.ToFloat64(m.lowStock))

	m.AddReportRows("daily_sales", 0)
	m.AddReportRows("daily_sales", 3)
	require.Equal(t, 3.0, testutil.ToFloat64(m.reportRows.WithLabelValues("daily_sales")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.SetLowStock(1)
	m.AddReportRows("x", 1)
	require.NoError(t, m.Track("x").End(nil))
}

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordSync(t *testing.T) {
	m := NewMetrics()
	m.RecordSync("MANUAL", true, 2, 1, 0, time.Second)
	m.RecordSync("SCHEDULED", false, 0, 0, 3, time.Second)

	require.Equal(t, float64(1), testutil.ToFloat64(m.syncRuns.WithLabelValues("MANUAL", "success")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.syncRuns.WithLabelValues("SCHEDULED", "failure")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.syncTickets.WithLabelValues("created")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.syncTickets.WithLabelValues("failed")))
}

func TestMetricsDispatchAndBusy(t *testing.T) {
	m := NewMetrics()
	m.RecordDispatch("ticket.task.translate", true)
	m.RecordDispatch("ticket.task.translate", false)
	m.RecordSyncBusy()

	require.Equal(t, float64(1), testutil.ToFloat64(m.dispatches.WithLabelValues("ticket.task.translate", "failure")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.syncBusy))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "INTERNAL_ERROR")
		m.RecordSync("MANUAL", true, 0, 0, 0, 0)
		m.RecordSyncBusy()
		m.RecordDispatch("t", true)
		m.RecordSyncStart(time.Now())
	})
	require.Nil(t, m.Registry())
}

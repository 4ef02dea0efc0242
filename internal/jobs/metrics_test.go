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

	require.NoError(t, m.Track("balances:reconcile").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("balances:reconcile").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("balances:reconcile", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("balances:reconcile", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("balances:reconcile")))
	require.Greater(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("balances:reconcile")), 0.0)
}

func TestLastSuccessUntouchedByFailures(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	_ = m.Track("idempotency:cleanup").End(errors.New("boom"))
	require.Equal(t, 0, testutil.CollectAndCount(m.lastSuccess))
}

func TestAddRepairsIgnoresEmptyCounts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddRepairs("supplier", 0)
	m.AddRepairs("supplier", 2)
	require.Equal(t, 2.0, testutil.ToFloat64(m.repairs.WithLabelValues("supplier")))

	var nilMetrics *Metrics
	nilMetrics.AddRepairs("supplier", 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}

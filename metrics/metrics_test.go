package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterMetrics(reg)

	AcquireCounter.WithLabelValues(ResultAcquired).Inc()
	ReleaseCounter.WithLabelValues(ResultReleased).Inc()
	DelayedReleaseGauge.Set(3)
	ScheduleFailureCounter.Inc()
	GuardCounter.WithLabelValues("books", ResultRejected).Inc()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 5)
	require.Equal(t, float64(3), testutil.ToFloat64(DelayedReleaseGauge))
}

func TestRegisterMetricsDuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterMetrics(reg)
	require.Panics(t, func() {
		RegisterMetrics(reg)
	})
}

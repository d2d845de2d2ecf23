package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(reg), reg
}

func TestNewCollectorRegistersEveryMetric(t *testing.T) {
	_, reg := newTestCollector(t)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(families), 8)
}

func TestRecordDispatchAndCompletedIncrementCounters(t *testing.T) {
	c, _ := newTestCollector(t)

	assert.NotPanics(t, func() {
		c.RecordDispatch("histogram")
		c.RecordCompleted("histogram", 0.25)
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(c.jobsDispatched.WithLabelValues("histogram")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.jobsCompleted.WithLabelValues("histogram")))
}

func TestRecordRequeuedAndWorkerDismissed(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordRequeued()
	c.RecordRequeued()
	c.RecordWorkerDismissed()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.jobsRequeued))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.workersDismissed))
}

func TestUpdateQueueStatsSetsGauges(t *testing.T) {
	c, _ := newTestCollector(t)

	c.UpdateQueueStats(3, 2, 4)

	assert.Equal(t, float64(3), testutil.ToFloat64(c.queueDepth))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.jobsInFlight))
	assert.Equal(t, float64(4), testutil.ToFloat64(c.liveWorkers))
}

func TestTwoCollectorsOnSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
		NewCollector(prometheus.NewRegistry())
	})
}

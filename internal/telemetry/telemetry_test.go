package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObservePut_NoopWhenDisabled(t *testing.T) {
	Enable(Config{Enabled: false})
	before := testutil.ToFloat64(putTotal.WithLabelValues("primary"))
	ObservePut("primary", 5)
	after := testutil.ToFloat64(putTotal.WithLabelValues("primary"))
	require.Equal(t, before, after)
}

func TestObservePut_CountsWhenEnabled(t *testing.T) {
	t.Cleanup(func() { Enable(Config{Enabled: false}) })
	Enable(Config{Enabled: true})

	before := testutil.ToFloat64(putTotal.WithLabelValues("sp"))
	ObservePut("sp", 3)
	after := testutil.ToFloat64(putTotal.WithLabelValues("sp"))
	require.Equal(t, float64(3), after-before)
}

func TestObserveDrainedBatch_RecordsHistogram(t *testing.T) {
	t.Cleanup(func() { Enable(Config{Enabled: false}) })
	Enable(Config{Enabled: true})

	before := drainedSampleCount(t)
	ObserveDrainedBatch(10)
	after := drainedSampleCount(t)
	require.Equal(t, before+1, after)
}

// drainedSampleCount returns how many observations the drained-batch
// histogram holds. testutil.CollectAndCount counts metrics, not
// observations, and an unlabeled histogram is always exactly one metric.
func drainedSampleCount(t *testing.T) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "hxhim_drained_batch_entries" {
			return f.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	t.Fatal("hxhim_drained_batch_entries is not registered")
	return 0
}

func TestSetQueueDepth_UpdatesGauge(t *testing.T) {
	t.Cleanup(func() { Enable(Config{Enabled: false}) })
	Enable(Config{Enabled: true})

	SetQueueDepth("put", 42)
	require.Equal(t, float64(42), testutil.ToFloat64(queueDepth.WithLabelValues("put")))
}

func TestEnable_StartsAndStopsSummaryLoopWithoutPanic(t *testing.T) {
	Enable(Config{Enabled: true, LogInterval: time.Millisecond})
	time.Sleep(5 * time.Millisecond)
	Enable(Config{Enabled: false, LogInterval: 0})
}

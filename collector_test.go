package ckms

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Estimator, *Collector) {
	e := newTestEstimator(t, Primitive, []Target{MustTarget(0.5, 0.01), MustTarget(0.9, 0.01)})
	c := NewCollector(CollectorOpts{
		Namespace:   "test",
		Name:        "latency_seconds",
		Help:        "Request latency.",
		ConstLabels: prometheus.Labels{"service": "api"},
	}, e)
	return e, c
}

func TestCollector(t *testing.T) {
	e, c := newTestCollector(t)
	for i := 1; i <= 10; i++ {
		e.Observe(float64(i))
	}

	const want = `
# HELP test_latency_seconds Request latency.
# TYPE test_latency_seconds summary
test_latency_seconds{service="api",strategy="primitive",quantile="0.5"} 5
test_latency_seconds{service="api",strategy="primitive",quantile="0.9"} 9
test_latency_seconds_sum{service="api",strategy="primitive"} 55
test_latency_seconds_count{service="api",strategy="primitive"} 10
# HELP test_latency_seconds_summary_items Number of items in the compressed quantile summary.
# TYPE test_latency_seconds_summary_items gauge
test_latency_seconds_summary_items{service="api",strategy="primitive"} 10
`
	err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"test_latency_seconds", "test_latency_seconds_summary_items")
	assert.NoError(t, err)
}

func TestCollectorEmpty(t *testing.T) {
	_, c := newTestCollector(t)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
	assert.Equal(t, 4, testutil.CollectAndCount(c))

	const want = `
# HELP test_latency_seconds Request latency.
# TYPE test_latency_seconds summary
test_latency_seconds_sum{service="api",strategy="primitive"} 0
test_latency_seconds_count{service="api",strategy="primitive"} 0
# HELP test_latency_seconds_pending_values Observations staged but not merged into the summary.
# TYPE test_latency_seconds_pending_values gauge
test_latency_seconds_pending_values{service="api",strategy="primitive"} 0
`
	err = testutil.CollectAndCompare(c, strings.NewReader(want),
		"test_latency_seconds", "test_latency_seconds_pending_values")
	assert.NoError(t, err)
}

func TestCollectorBaselineLeavesBufferToWriter(t *testing.T) {
	const n = 200000

	e := newTestEstimator(t, Baseline, DefaultTargets(), WithBufferSize(16))
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(CollectorOpts{Name: "values", Help: "Values."}, e)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			e.Observe(float64(i))
		}
	}()
	for i := 0; i < 50; i++ {
		count, err := testutil.GatherAndCount(reg)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
	}
	wg.Wait()

	e.Flush()
	stats := e.Stats()
	assert.Equal(t, uint64(n), stats.Count)
	assert.Equal(t, uint64(0), stats.Dropped)
	assert.Equal(t, 0, stats.Pending)
}

func TestCollectorBaselineExportsMerged(t *testing.T) {
	e := newTestEstimator(t, Baseline, []Target{MustTarget(0.5, 0.01)}, WithBufferSize(4))
	c := NewCollector(CollectorOpts{Name: "values", Help: "Values."}, e)
	for i := 1; i <= 6; i++ {
		e.Observe(float64(i))
	}

	// The first four were merged when the buffer filled, the rest stay with
	// the writer.
	const want = `
# HELP values Values.
# TYPE values summary
values{strategy="baseline",quantile="0.5"} 2
values_sum{strategy="baseline"} 10
values_count{strategy="baseline"} 4
# HELP values_pending_values Observations staged but not merged into the summary.
# TYPE values_pending_values gauge
values_pending_values{strategy="baseline"} 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(want), "values", "values_pending_values")
	assert.NoError(t, err)
	assert.Equal(t, 2, e.Stats().Pending)
}

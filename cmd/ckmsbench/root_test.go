package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/axiomhq/ckms"
	"github.com/axiomhq/ckms/bench"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBenchConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
estimator:
  strategy: queue
  queue_threshold: 500
run:
  writers: 8
  per_writer: 1000
  stats_interval: 2s
`), 0o600))

	c, err := loadBenchConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ckms.Queue, c.Estimator.Strategy)
	assert.Equal(t, 500, c.Estimator.QueueThreshold)
	assert.Equal(t, ckms.DefaultConfig().Targets, c.Estimator.Targets)
	assert.Equal(t, 8, c.Run.Writers)
	assert.Equal(t, 1000, c.Run.PerWriter)
	assert.Equal(t, 2*time.Second, c.Run.StatsInterval)
	// Unset fields keep their defaults.
	assert.Equal(t, bench.DefaultRunConfig().Range, c.Run.Range)

	c, err = loadBenchConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultBenchConfig(), c)

	_, err = loadBenchConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "WARN", "error"} {
		_, err := newLogger(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := newLogger("loud")
	assert.Error(t, err)
}

func TestSingleWriterGuard(t *testing.T) {
	rc := bench.DefaultRunConfig()
	rc.StatsInterval = time.Second

	got := singleWriterGuard(rc, ckms.Primitive, log.NewNopLogger())
	assert.Equal(t, rc, got)

	got = singleWriterGuard(rc, ckms.Baseline, log.NewNopLogger())
	assert.Equal(t, 1, got.Writers)
	assert.Equal(t, rc.Writers*rc.PerWriter, got.PerWriter)
	assert.Equal(t, time.Duration(0), got.StatsInterval)
}

func TestMetricsRegistryBaseline(t *testing.T) {
	var logs bytes.Buffer
	logger := log.NewLogfmtLogger(&logs)

	e, err := ckms.New(ckms.Baseline, ckms.DefaultTargets(), ckms.WithBufferSize(8))
	require.NoError(t, err)
	reg := metricsRegistry(e, logger)
	assert.Contains(t, logs.String(), "baseline strategy exports merged values only")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100000; i++ {
			e.Observe(float64(i))
		}
	}()
	for i := 0; i < 20; i++ {
		count, err := testutil.GatherAndCount(reg, "ckmsbench_observed_value")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	}
	<-done

	logs.Reset()
	e, err = ckms.New(ckms.Queue, ckms.DefaultTargets())
	require.NoError(t, err)
	metricsRegistry(e, logger)
	assert.Empty(t, logs.String())
}

func TestHDRMax(t *testing.T) {
	rc := bench.DefaultRunConfig()
	assert.Equal(t, int64(1e10)+1, hdrMax(rc))
	rc.Permutation = true
	assert.Equal(t, int64(rc.Writers*rc.PerWriter)+1, hdrMax(rc))
}

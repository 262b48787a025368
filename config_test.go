package ckms

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	assert := assert.New(t)

	cfg, err := ParseConfig([]byte(`
strategy: local
buffer_size: 64
free_workers: 4
targets:
  - {quantile: 0.5, error: 0.05}
  - {quantile: 0.99, error: 0.001}
`))
	require.NoError(t, err)
	assert.Equal(Local, cfg.Strategy)
	assert.Equal(64, cfg.BufferSize)
	assert.Equal(4, cfg.FreeWorkers)
	assert.Equal([]TargetConfig{{0.5, 0.05}, {0.99, 0.001}}, cfg.Targets)
}

func TestParseConfigDefaults(t *testing.T) {
	assert := assert.New(t)

	cfg, err := ParseConfig([]byte("strategy: queue\n"))
	require.NoError(t, err)
	assert.Equal(Queue, cfg.Strategy)
	assert.Equal(0, cfg.QueueThreshold)
	assert.Equal(DefaultConfig().Targets, cfg.Targets)

	cfg, err = ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(DefaultConfig(), cfg)
}

func TestParseConfigInvalid(t *testing.T) {
	assert := assert.New(t)

	for _, tc := range []struct {
		doc  string
		want error
	}{
		{"strategy: spinlock", ErrUnknownStrategy},
		{"buffer_size: -1", ErrInvalidBufferSize},
		{"queue_threshold: -1", ErrInvalidBufferSize},
		{"targets: [{quantile: 1.5, error: 0.01}]", ErrInvalidQuantile},
		{"targets: [{quantile: 0.5, error: -0.01}]", ErrInvalidError},
		{"targets: [{quantile: 0.5}, {quantile: 0, error: 0.1}]", ErrInvalidQuantile},
	} {
		_, err := ParseConfig([]byte(tc.doc))
		assert.Equal(tc.want, errors.Cause(err), tc.doc)
	}

	_, err := ParseConfig([]byte("strategy: [\n"))
	assert.Error(err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy: baseline\nbuffer_size: 100\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Baseline, cfg.Strategy)
	assert.Equal(t, 100, cfg.BufferSize)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.Strategy = Primitive
	cfg.BufferSize = 3
	e, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(Primitive, e.Strategy())
	assert.Equal([]float64{0.5, 0.9, 0.95, 0.99, 0.999, 0.9999}, e.Monitored())

	// The configured buffer size is in effect.
	e.Observe(1)
	e.Observe(2)
	assert.Equal(uint64(0), e.Size())
	e.Observe(3)
	assert.Equal(uint64(3), e.Size())

	// Later options win.
	e, err = NewFromConfig(cfg, WithBufferSize(2))
	require.NoError(t, err)
	e.Observe(1)
	e.Observe(2)
	assert.Equal(uint64(2), e.Size())

	cfg.Targets = nil
	_, err = NewFromConfig(cfg)
	assert.Equal(ErrNoTargets, errors.Cause(err))
}

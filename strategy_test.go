package ckms

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	assert := assert.New(t)

	for _, s := range Strategies() {
		parsed, err := ParseStrategy(s.String())
		assert.NoError(err)
		assert.Equal(s, parsed)
	}

	parsed, err := ParseStrategy(" Queue ")
	assert.NoError(err)
	assert.Equal(Queue, parsed)

	_, err = ParseStrategy("mutex")
	assert.Equal(ErrUnknownStrategy, errors.Cause(err))
}

func TestStrategyText(t *testing.T) {
	assert := assert.New(t)

	text, err := Local.MarshalText()
	assert.NoError(err)
	assert.Equal("local", string(text))

	var s Strategy
	assert.NoError(s.UnmarshalText([]byte("primitive")))
	assert.Equal(Primitive, s)
	assert.Error(s.UnmarshalText([]byte("nope")))
	assert.Equal(Primitive, s)

	_, err = Strategy(42).MarshalText()
	assert.Equal(ErrUnknownStrategy, errors.Cause(err))
	assert.Equal("unknown", Strategy(42).String())
}

func TestNewStager(t *testing.T) {
	targets := DefaultTargets()

	for _, s := range Strategies() {
		e, err := New(s, targets)
		require.NoError(t, err)
		assert.Equal(t, 0, e.stage.pending(), s.String())
	}

	_, err := New(Strategy(7), targets)
	assert.Equal(t, ErrUnknownStrategy, errors.Cause(err))

	_, err = New(Primitive, targets, WithBufferSize(-1))
	assert.Equal(t, ErrInvalidBufferSize, errors.Cause(err))

	_, err = New(Queue, targets, WithQueueThreshold(-5))
	assert.Equal(t, ErrInvalidBufferSize, errors.Cause(err))
}

func TestBatchPool(t *testing.T) {
	assert := assert.New(t)

	pool := newBatchPool(8)
	batch := pool.get()
	assert.Empty(*batch)
	assert.GreaterOrEqual(cap(*batch), 8)

	*batch = append(*batch, 3, 1, 2)
	sortBatch(*batch)
	assert.Equal([]float64{1, 2, 3}, *batch)
	pool.put(batch)

	// Whatever comes back out is empty again.
	assert.Empty(*pool.get())
}

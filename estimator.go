// Package ckms estimates targeted quantiles (p50, p99, p99.9, ...) over an
// unbounded stream of float64 observations in bounded memory, using the
// Cormode, Korn, Muthukrishnan and Srivastava biased quantile summary.
//
// Observations are staged by one of four strategies (see Strategy) and merged
// into the summary in sorted batches. Every estimate returned for a
// registered Target{q, eps} after a flush has a rank within eps*n of the true
// q-quantile, where n is the number of merged values.
package ckms

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Estimator composes a staging strategy with a CKMS summary. All methods are
// safe for concurrent use, except that the Baseline strategy assumes a single
// goroutine calls Observe, Flush and Get.
type Estimator struct {
	strategy Strategy
	targets  []Target
	logger   log.Logger

	stage stager

	mu  sync.Mutex
	sum *summary

	merges        atomic.Uint64
	skippedMerges atomic.Uint64
	dropped       atomic.Uint64
}

// Stats is a point in time view of an Estimator.
type Stats struct {
	Strategy Strategy
	// Samples is the number of items in the compressed summary.
	Samples int
	// Count is the number of values merged into the summary.
	Count uint64
	// Sum of all merged values.
	Sum float64
	// Min and Max are the smallest and largest merged values, both zero
	// while the summary is empty.
	Min float64
	Max float64
	// Pending values are staged but not merged yet.
	Pending int
	// Merges counts non-empty batches merged into the summary.
	Merges uint64
	// SkippedMerges counts Queue merges abandoned because the summary was busy.
	SkippedMerges uint64
	// Dropped counts observations lost to a full staging buffer.
	Dropped uint64
}

// Option configures an Estimator.
type Option func(*options)

type options struct {
	bufferSize     int
	queueThreshold int
	freeWorkers    int
	logger         log.Logger
}

// WithBufferSize sets the staging buffer capacity of the Baseline, Primitive
// and Local strategies.
func WithBufferSize(n int) Option {
	return func(o *options) {
		o.bufferSize = n
	}
}

// WithQueueThreshold sets how many queued values trigger a merge attempt
// with the Queue strategy.
func WithQueueThreshold(n int) Option {
	return func(o *options) {
		o.queueThreshold = n
	}
}

// WithFreeWorkers bounds how many idle workers the Local strategy keeps for
// Estimator.Observe callers. Defaults to twice GOMAXPROCS.
func WithFreeWorkers(n int) Option {
	return func(o *options) {
		o.freeWorkers = n
	}
}

// WithLogger sets the logger used to report dropped observations.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New returns an Estimator tracking the given targets. The target set is
// fixed for the lifetime of the Estimator.
func New(strategy Strategy, targets []Target, opts ...Option) (*Estimator, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	// Rebuild every target so literals get validated and their coefficients.
	owned := make([]Target, len(targets))
	for i, t := range targets {
		nt, err := NewTarget(t.Quantile, t.Error)
		if err != nil {
			return nil, err
		}
		owned[i] = nt
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.NewNopLogger()
	}

	e := &Estimator{
		strategy: strategy,
		targets:  owned,
		logger:   log.With(o.logger, "strategy", strategy),
		sum:      newSummary(owned),
	}
	stage, err := newStager(strategy, e, o)
	if err != nil {
		return nil, err
	}
	e.stage = stage
	return e, nil
}

// Observe records one value. It never fails; under the Baseline strategy a
// value that meets a full buffer is dropped and counted in Stats.Dropped.
func (e *Estimator) Observe(v float64) {
	e.stage.push(v)
}

// Worker returns a staging handle for one goroutine. See Worker.
func (e *Estimator) Worker() *Worker {
	if l, ok := e.stage.(*local); ok {
		return l.newWorker()
	}
	return &Worker{e: e}
}

// Get merges everything staged and returns the estimate for quantile q.
// The error guarantee only holds for registered quantiles, but any q in
// [0, 1] may be asked. ErrNoData is returned until a value has been merged.
func (e *Estimator) Get(q float64) (float64, error) {
	if math.IsNaN(q) || q < 0 || q > 1 {
		return 0, errors.Wrapf(ErrInvalidQuantile, "want 0 <= q <= 1, got %v", q)
	}
	e.Flush()

	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.sum.query(q)
	if !ok {
		return 0, ErrNoData
	}
	return v, nil
}

// Quantiles flushes once and returns the estimate of every registered
// quantile.
func (e *Estimator) Quantiles() (map[float64]float64, error) {
	e.Flush()
	return e.merged()
}

// merged estimates every registered quantile from the summary as it stands,
// ignoring staged values. It never touches the staging area.
func (e *Estimator) merged() (map[float64]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sum.Len() == 0 {
		return nil, ErrNoData
	}
	out := make(map[float64]float64, len(e.targets))
	for _, t := range e.targets {
		out[t.Quantile], _ = e.sum.query(t.Quantile)
	}
	return out, nil
}

// Flush merges every staged value into the summary and compresses it. It is
// safe to call at any time; with nothing staged it does nothing.
func (e *Estimator) Flush() {
	e.stage.drain()
}

// Monitored returns the registered quantiles in construction order.
func (e *Estimator) Monitored() []float64 {
	out := make([]float64, len(e.targets))
	for i, t := range e.targets {
		out[i] = t.Quantile
	}
	return out
}

// Targets returns a copy of the registered targets.
func (e *Estimator) Targets() []Target {
	out := make([]Target, len(e.targets))
	copy(out, e.targets)
	return out
}

// Strategy ...
func (e *Estimator) Strategy() Strategy {
	return e.strategy
}

// SampleSize returns the number of items in the compressed summary.
func (e *Estimator) SampleSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sum.Len()
}

// Size returns the number of values merged into the summary so far.
func (e *Estimator) Size() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sum.Count()
}

// Stats is safe to call from any goroutine, including alongside a Baseline
// writer. It never flushes.
func (e *Estimator) Stats() Stats {
	pending := e.stage.pending()

	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Strategy:      e.strategy,
		Samples:       e.sum.Len(),
		Count:         e.sum.Count(),
		Sum:           e.sum.Sum(),
		Min:           e.sum.MinValue(),
		Max:           e.sum.MaxValue(),
		Pending:       pending,
		Merges:        e.merges.Load(),
		SkippedMerges: e.skippedMerges.Load(),
		Dropped:       e.dropped.Load(),
	}
}

// Items returns a copy of the summary entries, mostly useful for debugging.
func (e *Estimator) Items() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sum.Items()
}

// mergeLocked inserts a sorted batch and compresses. e.mu must be held.
func (e *Estimator) mergeLocked(batch []float64) {
	if len(batch) > 0 {
		e.sum.insert(batch)
		e.merges.Add(1)
	}
	e.sum.compress()
}

// mergeBatch sorts a batch outside the summary lock, merges it and hands the
// slice back to its pool.
func (e *Estimator) mergeBatch(batch *[]float64, pool *batchPool) {
	sortBatch(*batch)

	e.mu.Lock()
	e.mergeLocked(*batch)
	e.mu.Unlock()

	pool.put(batch)
}

func (e *Estimator) drop(v float64, err error) {
	e.dropped.Add(1)
	level.Warn(e.logger).Log("msg", "dropping observation", "value", v, "err", err)
}

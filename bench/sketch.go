// Package bench drives quantile sketches with concurrent writers and reports
// throughput, summary size and, optionally, the exact rank error of every
// estimate. Besides the ckms estimator it wraps a few well known sketches so
// their numbers can be put side by side.
package bench

import (
	"fmt"
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/axiomhq/ckms"
	"github.com/beorn7/perks/quantile"
	"github.com/pkg/errors"
	"github.com/stripe/veneur/tdigest"
)

// Sketch is a concurrent quantile estimator under test.
type Sketch interface {
	Name() string
	Observe(v float64)
	// Quantile returns ckms.ErrNoData while the sketch is empty.
	Quantile(q float64) (float64, error)
	Flush()
	// Size is the number of observations the sketch accounts for.
	Size() uint64
}

// Observer accepts observations.
type Observer interface {
	Observe(v float64)
}

// writerSketch is implemented by sketches that hand each writer goroutine
// its own handle. The returned func releases it.
type writerSketch interface {
	Writer() (Observer, func())
}

// statsSketch is implemented by sketches with internals worth logging.
type statsSketch interface {
	Stats() ckms.Stats
}

// CKMS wraps a ckms.Estimator.
type CKMS struct {
	e *ckms.Estimator
}

// NewCKMS ...
func NewCKMS(e *ckms.Estimator) *CKMS {
	return &CKMS{e: e}
}

func (c *CKMS) Name() string                        { return "ckms/" + c.e.Strategy().String() }
func (c *CKMS) Observe(v float64)                   { c.e.Observe(v) }
func (c *CKMS) Quantile(q float64) (float64, error) { return c.e.Get(q) }
func (c *CKMS) Flush()                              { c.e.Flush() }
func (c *CKMS) Size() uint64                        { return c.e.Size() }
func (c *CKMS) Stats() ckms.Stats                   { return c.e.Stats() }

// Writer returns a dedicated ckms.Worker, which only matters for the local
// strategy.
func (c *CKMS) Writer() (Observer, func()) {
	w := c.e.Worker()
	return w, w.Close
}

// Perks wraps a beorn7/perks targeted stream behind a mutex.
type Perks struct {
	mu     sync.Mutex
	stream *quantile.Stream
}

// NewPerks tracks the same targets a ckms estimator would.
func NewPerks(targets []ckms.Target) *Perks {
	m := make(map[float64]float64, len(targets))
	for _, t := range targets {
		m[t.Quantile] = t.Error
	}
	return &Perks{stream: quantile.NewTargeted(m)}
}

func (p *Perks) Name() string { return "perks" }

func (p *Perks) Observe(v float64) {
	p.mu.Lock()
	p.stream.Insert(v)
	p.mu.Unlock()
}

func (p *Perks) Quantile(q float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream.Count() == 0 {
		return 0, ckms.ErrNoData
	}
	return p.stream.Query(q), nil
}

// Flush is a no-op, perks flushes its buffer on every query.
func (p *Perks) Flush() {}

func (p *Perks) Size() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint64(p.stream.Count())
}

// TDigest wraps a veneur merging t-digest behind a mutex.
type TDigest struct {
	compression float64

	mu     sync.Mutex
	digest *tdigest.MergingDigest
	count  uint64
}

// NewTDigest ...
func NewTDigest(compression float64) (*TDigest, error) {
	if compression <= 0 || math.IsNaN(compression) {
		return nil, errors.Errorf("tdigest compression must be > 0, got %v", compression)
	}
	return &TDigest{
		compression: compression,
		digest:      tdigest.NewMerging(compression, false),
	}, nil
}

func (t *TDigest) Name() string { return fmt.Sprintf("tdigest/%g", t.compression) }

func (t *TDigest) Observe(v float64) {
	t.mu.Lock()
	t.digest.Add(v, 1)
	t.count++
	t.mu.Unlock()
}

func (t *TDigest) Quantile(q float64) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return 0, ckms.ErrNoData
	}
	return t.digest.Quantile(q), nil
}

func (t *TDigest) Flush() {}

func (t *TDigest) Size() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// DDSketch wraps a DataDog relative accuracy sketch behind a mutex. Values it
// cannot track (NaN, out of range) are counted as rejected.
type DDSketch struct {
	accuracy float64

	mu       sync.Mutex
	sketch   *ddsketch.DDSketch
	rejected uint64
}

// NewDDSketch ...
func NewDDSketch(accuracy float64) (*DDSketch, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil, errors.Wrap(err, "creating ddsketch")
	}
	return &DDSketch{accuracy: accuracy, sketch: sketch}, nil
}

func (d *DDSketch) Name() string { return fmt.Sprintf("ddsketch/%g", d.accuracy) }

func (d *DDSketch) Observe(v float64) {
	d.mu.Lock()
	if err := d.sketch.Add(v); err != nil {
		d.rejected++
	}
	d.mu.Unlock()
}

func (d *DDSketch) Quantile(q float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sketch.IsEmpty() {
		return 0, ckms.ErrNoData
	}
	return d.sketch.GetValueAtQuantile(q)
}

func (d *DDSketch) Flush() {}

func (d *DDSketch) Size() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(d.sketch.GetCount())
}

// Rejected reports how many observations the sketch refused.
func (d *DDSketch) Rejected() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rejected
}

// HDR wraps an HdrHistogram behind a mutex. Observations are truncated to
// integers; values outside [min, max] are counted as rejected.
type HDR struct {
	mu       sync.Mutex
	hist     *hdrhistogram.Histogram
	rejected uint64
}

// NewHDR ...
func NewHDR(min, max int64, sigfigs int) (*HDR, error) {
	if min < 1 || max <= min || sigfigs < 1 || sigfigs > 5 {
		return nil, errors.Errorf("invalid hdr histogram bounds min=%d max=%d sigfigs=%d", min, max, sigfigs)
	}
	return &HDR{hist: hdrhistogram.New(min, max, sigfigs)}, nil
}

func (h *HDR) Name() string { return "hdr" }

func (h *HDR) Observe(v float64) {
	h.mu.Lock()
	if math.IsNaN(v) || h.hist.RecordValue(int64(v)) != nil {
		h.rejected++
	}
	h.mu.Unlock()
}

func (h *HDR) Quantile(q float64) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hist.TotalCount() == 0 {
		return 0, ckms.ErrNoData
	}
	return float64(h.hist.ValueAtQuantile(q * 100)), nil
}

func (h *HDR) Flush() {}

func (h *HDR) Size() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint64(h.hist.TotalCount())
}

// Rejected reports how many observations fell outside the histogram range.
func (h *HDR) Rejected() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rejected
}

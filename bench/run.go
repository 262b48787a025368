package bench

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// RunConfig describes one benchmark run.
type RunConfig struct {
	// Writers is the number of goroutines observing values.
	Writers int `yaml:"writers"`
	// PerWriter is the number of values each writer observes.
	PerWriter int `yaml:"per_writer"`
	// Range bounds the uniform values drawn from [0, Range).
	Range float64 `yaml:"range"`
	// Permutation feeds a shuffled 0..Writers*PerWriter-1 instead of
	// uniform values.
	Permutation bool  `yaml:"permutation"`
	Seed        int64 `yaml:"seed"`
	// StatsInterval, if set, flushes the sketch and logs its size
	// periodically while the writers run.
	StatsInterval time.Duration `yaml:"stats_interval"`
	// Verify computes the exact rank error of every estimate.
	Verify bool `yaml:"verify"`
	// Quantiles to report.
	Quantiles []float64 `yaml:"quantiles"`
}

// DefaultRunConfig mirrors the classic latency benchmark: four writers, a
// million values from [0, 1e10), the six default quantiles.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Writers:   4,
		PerWriter: 250000,
		Range:     1e10,
		Seed:      1,
		Quantiles: []float64{0.5, 0.9, 0.95, 0.99, 0.999, 0.9999},
	}
}

// Validate ...
func (c RunConfig) Validate() error {
	if c.Writers <= 0 {
		return errors.Errorf("writers must be > 0, got %d", c.Writers)
	}
	if c.PerWriter <= 0 {
		return errors.Errorf("per_writer must be > 0, got %d", c.PerWriter)
	}
	if !c.Permutation && !(c.Range > 0) {
		return errors.Errorf("range must be > 0, got %v", c.Range)
	}
	for _, q := range c.Quantiles {
		if math.IsNaN(q) || q < 0 || q > 1 {
			return errors.Errorf("quantile out of range: %v", q)
		}
	}
	return nil
}

// Estimate is one reported quantile.
type Estimate struct {
	Quantile float64
	Value    float64
	// RankError is the distance between the estimate's rank and the
	// requested rank as a fraction of all values. NaN unless verified.
	RankError float64
}

// Result of a Run.
type Result struct {
	Sketch    string
	Observed  uint64
	Size      uint64
	Elapsed   time.Duration
	Estimates []Estimate
}

// Throughput in observations per second.
func (r Result) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Observed) / r.Elapsed.Seconds()
}

// Run feeds s from cfg.Writers goroutines and collects the estimates. Values
// are generated before the clock starts. A cancelled ctx stops the writers
// and is returned as the error.
func Run(ctx context.Context, cfg RunConfig, s Sketch, logger log.Logger) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "sketch", s.Name())

	values := generate(cfg)

	stop := make(chan struct{})
	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		logStats(s, cfg.StatsInterval, stop, logger)
	}()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, chunk := range values {
		chunk := chunk
		g.Go(func() error {
			return write(gctx, s, chunk)
		})
	}
	err := g.Wait()
	close(stop)
	<-statsDone
	if err != nil {
		return Result{}, errors.Wrap(err, "writing values")
	}
	s.Flush()
	elapsed := time.Since(start)

	res := Result{
		Sketch:   s.Name(),
		Observed: uint64(cfg.Writers * cfg.PerWriter),
		Size:     s.Size(),
		Elapsed:  elapsed,
	}

	var sorted []float64
	if cfg.Verify {
		sorted = make([]float64, 0, res.Observed)
		for _, chunk := range values {
			sorted = append(sorted, chunk...)
		}
		sort.Float64s(sorted)
	}
	for _, q := range cfg.Quantiles {
		v, err := s.Quantile(q)
		if err != nil {
			return Result{}, errors.Wrapf(err, "quantile %v", q)
		}
		est := Estimate{Quantile: q, Value: v, RankError: math.NaN()}
		if sorted != nil {
			est.RankError = RankError(sorted, q, v)
		}
		res.Estimates = append(res.Estimates, est)
	}

	level.Info(logger).Log("msg", "run finished", "observed", res.Observed, "size", res.Size,
		"elapsed", res.Elapsed, "throughput", int64(res.Throughput()))
	return res, nil
}

func write(ctx context.Context, s Sketch, values []float64) error {
	var obs Observer = s
	if ws, ok := s.(writerSketch); ok {
		w, release := ws.Writer()
		defer release()
		obs = w
	}
	for i, v := range values {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		obs.Observe(v)
	}
	return nil
}

func logStats(s Sketch, interval time.Duration, stop <-chan struct{}, logger log.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Flush()
			keyvals := []interface{}{"msg", "flushed", "size", s.Size()}
			if ss, ok := s.(statsSketch); ok {
				stats := ss.Stats()
				keyvals = append(keyvals, "samples", stats.Samples, "merges", stats.Merges,
					"skipped_merges", stats.SkippedMerges, "dropped", stats.Dropped)
			}
			level.Info(logger).Log(keyvals...)
		}
	}
}

// generate draws every writer's values up front.
func generate(cfg RunConfig) [][]float64 {
	r := rand.New(rand.NewSource(cfg.Seed))
	out := make([][]float64, cfg.Writers)

	if cfg.Permutation {
		perm := r.Perm(cfg.Writers * cfg.PerWriter)
		for w := range out {
			chunk := make([]float64, cfg.PerWriter)
			for i := range chunk {
				chunk[i] = float64(perm[w*cfg.PerWriter+i])
			}
			out[w] = chunk
		}
		return out
	}

	for w := range out {
		chunk := make([]float64, cfg.PerWriter)
		for i := range chunk {
			chunk[i] = r.Float64() * cfg.Range
		}
		out[w] = chunk
	}
	return out
}

// RankError reports how far v is from being the q-quantile of sorted, as a
// fraction of len(sorted). Any rank v may legitimately take counts, so
// duplicates never add error.
func RankError(sorted []float64, q, v float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	desired := int(math.Floor(q * float64(n)))
	if desired >= n {
		desired = n - 1
	}
	// v occupies ranks [lo, hi).
	lo := sort.SearchFloat64s(sorted, v)
	hi := sort.Search(n, func(i int) bool { return sorted[i] > v })

	var dist int
	switch {
	case hi == lo:
		// v was never observed, it sits between ranks lo-1 and lo.
		dist = abs(desired - lo)
		if lo > 0 && abs(desired-(lo-1)) < dist {
			dist = abs(desired - (lo - 1))
		}
	case desired < lo:
		dist = lo - desired
	case desired >= hi:
		dist = desired - (hi - 1)
	}
	return float64(dist) / float64(n)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

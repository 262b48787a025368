package ckms

import (
	"math"
)

// summary is the CKMS targeted quantile summary: items ordered by value with
// rank bookkeeping, plus the number of values merged so far. It is not safe
// for concurrent use; Estimator guards it.
type summary struct {
	targets []Target
	items   []Item
	spare   []Item
	count   uint64
	sum     float64

	// compress may fold the smallest item away, so the extremes are kept
	// on the side.
	min, max float64
}

func newSummary(targets []Target) *summary {
	return &summary{
		targets: targets,
		items:   make([]Item, 0),
	}
}

/*
allowableError is f(r, n) from Cormode, Korn, Muthukrishnan and Srivastava,
"Effective Computation of Biased Quantiles over Data Streams" (ICDE 2005):
how wide the rank uncertainty of an item at rank r may be while every target
still meets its error bound. The tightest target wins.

n is the number of values merged so far, not the number of items in the
summary. Using the item count keeps the summary larger than necessary and
stops compress from reaching a fixed point, as the item count shrinks while
compress runs.

The eps*n guarantee holds for shuffled input but not strictly for sorted
streams. When every batch lands below everything merged so far, as with a
descending stream, the median can end up slightly past eps*n (about
1.04*eps*n at n=200000). Callers feeding ordered data should pick eps with
that margin in mind.
*/
func (s *summary) allowableError(rank float64) float64 {
	size := float64(s.count)
	minError := size + 1
	for _, t := range s.targets {
		var err float64
		if rank <= t.Quantile*size {
			err = t.u * (size - rank)
		} else {
			err = t.v * rank
		}
		if err < minError {
			minError = err
		}
	}
	return minError
}

// delta is the rank uncertainty given to a value inserted after rank
// lower bound r.
func (s *summary) delta(rank float64) uint32 {
	d := math.Floor(s.allowableError(rank)) - 1
	switch {
	case d <= 0:
		return 0
	case d >= math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(d)
}

// insert merges a batch of raw values, sorted ascending by less, into the
// summary.
func (s *summary) insert(batch []float64) {
	if len(batch) == 0 {
		return
	}
	lo, hi := batch[0], batch[len(batch)-1]
	if s.count == 0 || less(lo, s.min) {
		s.min = lo
	}
	if s.count == 0 || less(s.max, hi) {
		s.max = hi
	}
	if len(s.items) == 0 {
		s.items = append(s.items, Item{Value: batch[0], G: 1})
		s.count++
		s.sum += batch[0]
		batch = batch[1:]
	}
	if len(batch) == 0 {
		return
	}

	// Both sides are sorted, so a single pass stacks the new values between
	// the existing items. rank tracks the sum of G over everything already
	// emitted, a lower bound on the rank of the next insertion point.
	out := s.spare[:0]
	if need := len(s.items) + len(batch); cap(out) < need {
		out = make([]Item, 0, need)
	}

	var (
		i    int
		rank float64
	)
	for _, v := range batch {
		for i < len(s.items) && less(s.items[i].Value, v) {
			rank += float64(s.items[i].G)
			out = append(out, s.items[i])
			i++
		}

		// The minimum and maximum are known exactly.
		var delta uint32
		if len(out) > 0 && i < len(s.items) {
			delta = s.delta(rank)
		}
		out = append(out, Item{Value: v, G: 1, Delta: delta})
		rank++
		s.count++
		s.sum += v
	}
	out = append(out, s.items[i:]...)

	s.spare = s.items[:0]
	s.items = out
}

// compress folds items into their successor while the merged item still fits
// in the error band at that rank. Running it twice in a row is a no-op.
func (s *summary) compress() {
	if len(s.items) < 2 {
		return
	}

	// Walk backwards. w is the current successor; survivors are written
	// towards the end of the slice and moved to the front afterwards.
	// rank is the sum of G up to and including the predecessor under test.
	w := len(s.items) - 1
	rank := float64(s.count) - float64(s.items[w].G)
	for i := len(s.items) - 2; i >= 0; i-- {
		prev := s.items[i]
		next := &s.items[w]
		g := uint64(prev.G) + uint64(next.G)
		if g <= math.MaxUint32 && float64(g)+float64(next.Delta) <= s.allowableError(rank) {
			next.G = uint32(g)
		} else {
			w--
			s.items[w] = prev
		}
		rank -= float64(prev.G)
	}

	n := copy(s.items, s.items[w:])
	s.items = s.items[:n]
}

// query returns the estimate for quantile q, or false if nothing has been
// merged yet.
func (s *summary) query(q float64) (float64, bool) {
	switch len(s.items) {
	case 0:
		return 0, false
	case 1:
		return s.items[0].Value, true
	}

	desired := math.Floor(q * float64(s.count))
	bound := desired + s.allowableError(desired)/2

	var rankMin float64
	prev := s.items[0]
	for _, cur := range s.items[1:] {
		rankMin += float64(prev.G)
		if rankMin+float64(cur.G)+float64(cur.Delta) > bound {
			return prev.Value, true
		}
		prev = cur
	}

	// edge case of wanting the max value
	return prev.Value, true
}

// Len ...
func (s *summary) Len() int {
	return len(s.items)
}

// Count ...
func (s *summary) Count() uint64 {
	return s.count
}

// Sum ...
func (s *summary) Sum() float64 {
	return s.sum
}

// MinValue is the smallest value ever merged, exact even after compress has
// absorbed the first item. Zero while empty.
func (s *summary) MinValue() float64 {
	return s.min
}

// MaxValue is the largest value ever merged. Zero while empty.
func (s *summary) MaxValue() float64 {
	return s.max
}

// Items returns a copy of the summary entries.
func (s *summary) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

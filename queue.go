package ckms

import (
	"sync"
	"sync/atomic"

	"github.com/petar/GoLLRB/llrb"
)

// staged is a queued observation. The tree keeps duplicates and yields them
// in ascending order, so a drained batch needs no sorting.
type staged float64

func (s staged) Less(than llrb.Item) bool {
	return less(float64(s), float64(than.(staged)))
}

// queue stages into an unbounded ordered tree. Once the queue holds at least
// threshold values, the pushing goroutine tries to take the summary lock and
// merges the whole queue; if somebody else holds the lock it moves on and the
// queue keeps growing until a later push or a Flush gets through.
//
// The tree has its own mutex, taken only for an insert or to swap in an empty
// tree. Draining walks the detached tree without it, so producers never wait
// on a merge.
type queue struct {
	e         *Estimator
	threshold int64
	n         atomic.Int64

	mu   sync.Mutex
	tree *llrb.LLRB
}

func newQueue(e *Estimator, threshold int) *queue {
	return &queue{
		e:         e,
		threshold: int64(threshold),
		tree:      llrb.New(),
	}
}

func (q *queue) push(v float64) {
	q.mu.Lock()
	q.tree.InsertNoReplace(staged(v))
	q.mu.Unlock()

	if q.n.Add(1) < q.threshold {
		return
	}
	if !q.e.mu.TryLock() {
		q.e.skippedMerges.Add(1)
		return
	}
	defer q.e.mu.Unlock()
	q.e.mergeLocked(ascending(q.swap()))
}

// drain detaches the queue before waiting for the summary, so producers
// keep inserting into a fresh tree meanwhile.
func (q *queue) drain() {
	batch := ascending(q.swap())

	q.e.mu.Lock()
	defer q.e.mu.Unlock()
	q.e.mergeLocked(batch)
}

// swap replaces the tree with an empty one and returns the old tree. Only
// the pointer swap happens under q.mu.
func (q *queue) swap() *llrb.LLRB {
	q.mu.Lock()
	t := q.tree
	q.tree = llrb.New()
	q.mu.Unlock()

	q.n.Add(-int64(t.Len()))
	return t
}

// ascending walks a detached tree in order.
func ascending(t *llrb.LLRB) []float64 {
	if t.Len() == 0 {
		return nil
	}
	batch := make([]float64, 0, t.Len())
	t.AscendGreaterOrEqual(t.Min(), func(it llrb.Item) bool {
		batch = append(batch, float64(it.(staged)))
		return true
	})
	return batch
}

func (q *queue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Len()
}

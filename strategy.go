package ckms

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Strategy selects how observations are staged before they are merged into
// the summary. All strategies share the same merge, compress and query code.
type Strategy int

const (
	// Baseline appends to a plain array without locking and merges under the
	// summary lock once the array is full. It assumes a single writer:
	// concurrent Observe calls race on the array, and writes that hit a full
	// array are dropped.
	Baseline Strategy = iota
	// Primitive appends under the buffer's own lock and hands full batches to
	// the summary after releasing it.
	Primitive
	// Queue pushes into an ordered queue and merges only when the summary
	// lock is free. Producers never wait on the summary.
	Queue
	// Local gives every worker its own buffer. Workers merge their own batch
	// when it fills; Flush drains all of them.
	Local
)

var strategyNames = map[Strategy]string{
	Baseline:  "baseline",
	Primitive: "primitive",
	Queue:     "queue",
	Local:     "local",
}

// Strategies lists every strategy in declaration order.
func Strategies() []Strategy {
	return []Strategy{Baseline, Primitive, Queue, Local}
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStrategy ...
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownStrategy, "%q", name)
}

// MarshalText ...
func (s Strategy) MarshalText() ([]byte, error) {
	if _, ok := strategyNames[s]; !ok {
		return nil, errors.Wrapf(ErrUnknownStrategy, "%d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText ...
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// defaultBufferSize is the staging capacity (or merge threshold for Queue)
// used when none is configured.
func (s Strategy) defaultBufferSize() int {
	switch s {
	case Baseline:
		return 500
	case Local:
		return 32
	default:
		return 200
	}
}

// stager is the part that differs between strategies.
type stager interface {
	// push stages v and merges when the staging area asks for it.
	push(v float64)
	// drain merges everything staged right now, even a partial batch.
	drain()
	// pending reports how many staged values are not merged yet.
	pending() int
}

func newStager(s Strategy, e *Estimator, o *options) (stager, error) {
	size := o.bufferSize
	if size == 0 {
		size = s.defaultBufferSize()
	}
	if size < 0 {
		return nil, errors.Wrapf(ErrInvalidBufferSize, "got %d", size)
	}

	switch s {
	case Baseline:
		buf, err := newBuffer(size)
		if err != nil {
			return nil, err
		}
		return &baseline{e: e, buf: buf}, nil
	case Primitive:
		buf, err := newBuffer(size)
		if err != nil {
			return nil, err
		}
		return &primitive{e: e, buf: buf, batches: newBatchPool(size)}, nil
	case Queue:
		threshold := o.queueThreshold
		if threshold == 0 {
			threshold = s.defaultBufferSize()
		}
		if threshold < 0 {
			return nil, errors.Wrapf(ErrInvalidBufferSize, "queue threshold %d", threshold)
		}
		return newQueue(e, threshold), nil
	case Local:
		return newLocal(e, size, o.freeWorkers), nil
	}
	return nil, errors.Wrapf(ErrUnknownStrategy, "%d", int(s))
}

// baseline stages into a single unsynchronized array. Only the writer
// touches buf; staged mirrors its size for readers on other goroutines.
type baseline struct {
	e      *Estimator
	buf    *buffer
	staged atomic.Int64
}

func (b *baseline) push(v float64) {
	if err := b.buf.push(v); err != nil {
		b.e.drop(v, err)
		return
	}
	b.staged.Add(1)
	if b.buf.isFull() {
		b.drain()
	}
}

func (b *baseline) drain() {
	b.e.mu.Lock()
	defer b.e.mu.Unlock()
	b.e.mergeLocked(b.buf.sorted())
	b.buf.clear()
	b.staged.Store(0)
}

func (b *baseline) pending() int {
	return int(b.staged.Load())
}

// primitive stages into an array guarded by its own mutex. A full array is
// copied out under that mutex and merged after it is released, so a writer
// never holds both locks.
type primitive struct {
	e       *Estimator
	batches *batchPool

	mu  sync.Mutex
	buf *buffer
}

func (p *primitive) push(v float64) {
	p.mu.Lock()
	if err := p.buf.push(v); err != nil {
		p.mu.Unlock()
		p.e.drop(v, err)
		return
	}
	var batch *[]float64
	if p.buf.isFull() {
		batch = p.takeLocked()
	}
	p.mu.Unlock()

	if batch != nil {
		p.e.mergeBatch(batch, p.batches)
	}
}

func (p *primitive) takeLocked() *[]float64 {
	batch := p.batches.get()
	*batch = p.buf.drainTo(*batch)
	return batch
}

func (p *primitive) drain() {
	p.mu.Lock()
	batch := p.takeLocked()
	p.mu.Unlock()
	p.e.mergeBatch(batch, p.batches)
}

func (p *primitive) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.size()
}

// batchPool recycles the slices used to carry batches from a staging buffer
// to the summary.
type batchPool struct {
	pool sync.Pool
}

func newBatchPool(size int) *batchPool {
	return &batchPool{
		pool: sync.Pool{
			New: func() any {
				batch := make([]float64, 0, size)
				return &batch
			},
		},
	}
}

func (bp *batchPool) get() *[]float64 {
	batch := bp.pool.Get().(*[]float64)
	*batch = (*batch)[:0]
	return batch
}

func (bp *batchPool) put(batch *[]float64) {
	bp.pool.Put(batch)
}

// sortBatch sorts a batch in the order the summary expects.
func sortBatch(batch []float64) {
	sort.Float64s(batch)
}

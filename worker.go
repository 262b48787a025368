package ckms

import (
	"runtime"
	"sync"
)

// Worker is a staging buffer owned by one goroutine. With the Local strategy
// every Worker has its own buffer and merges only that buffer when it fills,
// so writers with their own Worker share nothing but the summary lock.
// With the other strategies a Worker simply forwards to Estimator.Observe.
//
// A Worker must not be used by more than one goroutine at a time. Close it
// once the goroutine is done so its remaining values are merged and the
// registration is dropped.
type Worker struct {
	e     *Estimator
	local *local

	// mu is only contended while Flush drains this worker.
	mu     sync.Mutex
	buf    *buffer
	closed bool
}

// Observe records one value.
func (w *Worker) Observe(v float64) {
	if w.local == nil {
		w.e.Observe(v)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.local.push(v)
		return
	}
	if err := w.buf.push(v); err != nil {
		w.mu.Unlock()
		w.e.drop(v, err)
		return
	}
	var batch *[]float64
	if w.buf.isFull() {
		batch = w.local.batches.get()
		*batch = w.buf.drainTo(*batch)
	}
	w.mu.Unlock()

	if batch != nil {
		w.e.mergeBatch(batch, w.local.batches)
	}
}

// Close merges whatever the worker still holds and unregisters it. Values
// observed after Close go through the estimator's shared path. Close is
// idempotent.
func (w *Worker) Close() {
	if w.local == nil {
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	batch := w.local.batches.get()
	*batch = w.buf.drainTo(*batch)
	w.mu.Unlock()

	w.local.unregister(w)
	w.e.mergeBatch(batch, w.local.batches)
}

// local keeps a registration table of live workers so Flush can reach every
// buffer. Observe calls made on the Estimator itself borrow a worker from a
// bounded free list; surplus workers are closed rather than parked, which
// keeps the table from growing with the number of goroutines that ever
// called Observe.
type local struct {
	e       *Estimator
	size    int
	batches *batchPool
	free    chan *Worker

	mu      sync.Mutex
	workers map[*Worker]struct{}
}

func newLocal(e *Estimator, size, freeWorkers int) *local {
	if freeWorkers <= 0 {
		freeWorkers = 2 * runtime.GOMAXPROCS(0)
	}
	return &local{
		e:       e,
		size:    size,
		batches: newBatchPool(size),
		free:    make(chan *Worker, freeWorkers),
		workers: make(map[*Worker]struct{}),
	}
}

func (l *local) newWorker() *Worker {
	// size was validated by newStager, so this cannot fail.
	buf, _ := newBuffer(l.size)
	w := &Worker{e: l.e, local: l, buf: buf}

	l.mu.Lock()
	l.workers[w] = struct{}{}
	l.mu.Unlock()
	return w
}

func (l *local) unregister(w *Worker) {
	l.mu.Lock()
	delete(l.workers, w)
	l.mu.Unlock()
}

func (l *local) push(v float64) {
	var w *Worker
	select {
	case w = <-l.free:
	default:
		w = l.newWorker()
	}

	w.Observe(v)

	select {
	case l.free <- w:
	default:
		w.Close()
	}
}

func (l *local) snapshot() []*Worker {
	l.mu.Lock()
	defer l.mu.Unlock()
	ws := make([]*Worker, 0, len(l.workers))
	for w := range l.workers {
		ws = append(ws, w)
	}
	return ws
}

// drain collects every registered buffer into one batch, taking one worker
// lock at a time, and merges it.
func (l *local) drain() {
	batch := l.batches.get()
	for _, w := range l.snapshot() {
		w.mu.Lock()
		*batch = w.buf.drainTo(*batch)
		w.mu.Unlock()
	}
	l.e.mergeBatch(batch, l.batches)
}

func (l *local) pending() int {
	var n int
	for _, w := range l.snapshot() {
		w.mu.Lock()
		n += w.buf.size()
		w.mu.Unlock()
	}
	return n
}

// workerCount reports how many workers are registered.
func (l *local) workerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.workers)
}

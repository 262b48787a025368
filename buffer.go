package ckms

import (
	"sort"

	"github.com/pkg/errors"
)

// buffer is a fixed capacity staging area for raw observations.
// It does no locking of its own.
type buffer struct {
	vec     []float64
	maxSize int
}

func newBuffer(maxSize int) (*buffer, error) {
	if maxSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidBufferSize, "got %d", maxSize)
	}
	return &buffer{
		maxSize: maxSize,
		vec:     make([]float64, 0, maxSize),
	}, nil
}

func (b *buffer) push(value float64) error {
	if b.isFull() {
		return errors.Wrapf(ErrBufferFull, "capacity %d", b.maxSize)
	}
	b.vec = append(b.vec, value)
	return nil
}

// sorted sorts the staged values in place and returns a view of them. The
// view is only valid until the next push or clear.
func (b *buffer) sorted() []float64 {
	sort.Float64s(b.vec)
	return b.vec
}

// drainTo appends the staged values to dst and clears the buffer.
func (b *buffer) drainTo(dst []float64) []float64 {
	dst = append(dst, b.vec...)
	b.clear()
	return dst
}

func (b *buffer) size() int {
	return len(b.vec)
}

func (b *buffer) isFull() bool {
	return len(b.vec) >= b.maxSize
}

func (b *buffer) clear() {
	b.vec = b.vec[:0]
}

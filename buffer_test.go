package ckms

import (
	"math"
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

func TestBufferInvalid(t *testing.T) {
	if _, err := newBuffer(0); err == nil {
		t.Error("expected error, got nil")
	}
	if _, err := newBuffer(-2); errors.Cause(err) != ErrInvalidBufferSize {
		t.Error("expected ErrInvalidBufferSize, got", err)
	}
}

func TestBufferPushNotFull(t *testing.T) {
	buf, err := newBuffer(4)
	if err != nil {
		t.Error("expected no err, got", err)
	}
	buf.push(5)
	buf.push(2)
	buf.push(-1)

	if buf.isFull() {
		t.Error("expected not full, got full")
	}
	if val := buf.size(); val != 3 {
		t.Error("expected 3, got", val)
	}
}

func TestBufferPushFull(t *testing.T) {
	buf, err := newBuffer(4)
	if err != nil {
		t.Error("expected no err, got", err)
	}
	buf.push(5)
	buf.push(2)
	buf.push(-1)
	buf.push(2)

	expected := []float64{-1, 2, 2, 5}

	if !buf.isFull() {
		t.Error("expected full, got not full")
	}
	if got := buf.sorted(); !reflect.DeepEqual(expected, got) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestBufferPushFullDeath(t *testing.T) {
	buf, err := newBuffer(2)
	if err != nil {
		t.Error("expected no err, got", err)
	}
	buf.push(5)
	buf.push(2)

	if !buf.isFull() {
		t.Error("expected full, got not full")
	}
	if err := buf.push(6); errors.Cause(err) != ErrBufferFull {
		t.Error("expected buffer already full, got", err)
	}
	if val := buf.size(); val != 2 {
		t.Error("expected 2, got", val)
	}
}

func TestBufferDrainTo(t *testing.T) {
	buf, err := newBuffer(3)
	if err != nil {
		t.Error("expected no err, got", err)
	}
	buf.push(3)
	buf.push(1)

	got := buf.drainTo([]float64{7})
	if expected := []float64{7, 3, 1}; !reflect.DeepEqual(expected, got) {
		t.Errorf("expected %v, got %v", expected, got)
	}
	if val := buf.size(); val != 0 {
		t.Error("expected empty buffer, got", val)
	}
	if err := buf.push(4); err != nil {
		t.Error("expected no err after drain, got", err)
	}
}

func TestBufferSortedNaNFirst(t *testing.T) {
	buf, err := newBuffer(3)
	if err != nil {
		t.Error("expected no err, got", err)
	}
	buf.push(1)
	buf.push(math.NaN())
	buf.push(-1)

	got := buf.sorted()
	if !math.IsNaN(got[0]) || got[1] != -1 || got[2] != 1 {
		t.Errorf("expected [NaN -1 1], got %v", got)
	}
}

package ckms

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Target is a quantile the estimator tracks together with the rank error
// allowed for it, e.g. {0.99, 0.001} for p99 within 0.1% of n.
type Target struct {
	Quantile float64
	Error    float64

	// error coefficients below and above the targeted rank
	u float64
	v float64
}

// NewTarget ...
func NewTarget(quantile, eps float64) (Target, error) {
	if math.IsNaN(quantile) || quantile <= 0 || quantile >= 1 {
		return Target{}, errors.Wrapf(ErrInvalidQuantile, "want 0 < quantile < 1, got %v", quantile)
	}
	if math.IsNaN(eps) || eps < 0 {
		return Target{}, errors.Wrapf(ErrInvalidError, "got %v for quantile %v", eps, quantile)
	}
	return Target{
		Quantile: quantile,
		Error:    eps,
		u:        2 * eps / (1 - quantile),
		v:        2 * eps / quantile,
	}, nil
}

// MustTarget is like NewTarget but panics on invalid input. It is meant for
// package level declarations.
func MustTarget(quantile, eps float64) Target {
	t, err := NewTarget(quantile, eps)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultTargets returns the latency oriented target set p50, p90, p95, p99,
// p99.9 and p99.99 with error budgets tightening towards the tail.
func DefaultTargets() []Target {
	return []Target{
		MustTarget(0.50, 0.01),
		MustTarget(0.90, 0.01),
		MustTarget(0.95, 0.001),
		MustTarget(0.99, 0.001),
		MustTarget(0.999, 0.0001),
		MustTarget(0.9999, 0.00001),
	}
}

func (t Target) String() string {
	return fmt.Sprintf("Q{q=%.3f, eps=%.3f}", t.Quantile, t.Error)
}

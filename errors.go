package ckms

import "github.com/pkg/errors"

var (
	// ErrNoData is returned by Get when nothing has been merged into the summary yet.
	ErrNoData = errors.New("no data")

	// ErrInvalidQuantile ...
	ErrInvalidQuantile = errors.New("quantile out of range")

	// ErrInvalidError ...
	ErrInvalidError = errors.New("error must be >= 0")

	// ErrNoTargets ...
	ErrNoTargets = errors.New("at least one target is required")

	// ErrUnknownStrategy ...
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInvalidBufferSize ...
	ErrInvalidBufferSize = errors.New("buffer size must be > 0")
)

// ErrBufferFull is reported when a value arrives at a staging buffer that has
// not been merged yet. The value is dropped.
var ErrBufferFull = errors.New("buffer already full")

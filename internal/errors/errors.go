package gerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCriteria marks filter input that must be rejected before any
	// query is constructed: missing dates, start after end.
	ErrInvalidCriteria = errors.New("invalid filter criteria")

	// ErrUnsupportedMetric marks a metric definition referencing a join or
	// source outside the supported schema. Construction-time only.
	ErrUnsupportedMetric = errors.New("unsupported metric definition")

	// ErrInvalidBucketSpec marks bucket boundaries that do not form an
	// ordered, gapless partition of (-inf, +inf). Construction-time only.
	ErrInvalidBucketSpec = errors.New("invalid bucket spec")
)

// QueryExecutionError wraps a failure from the relational store. It is
// surfaced to callers as a "data unavailable" condition and is never retried
// by the engine itself.
type QueryExecutionError struct {
	Op  string
	Err error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("data unavailable: %s: %v", e.Op, e.Err)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// ExecutionFailed wraps err into a QueryExecutionError tagged with op.
func ExecutionFailed(op string, err error) error {
	return &QueryExecutionError{Op: op, Err: err}
}

// IsExecutionError reports whether err is (or wraps) a store failure.
func IsExecutionError(err error) bool {
	var qe *QueryExecutionError
	return errors.As(err, &qe)
}

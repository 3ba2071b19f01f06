package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrMethod       = errors.New("method not allowed")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("service unavailable")
	ErrInternal     = errors.New("internal error")
)

// KindError tags an error with the operation that produced it and a sentinel
// kind the handler maps onto a status code.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

// NewKind returns a KindError without an underlying cause.
func NewKind(op string, kind error) *KindError {
	return &KindError{Op: op, Kind: kind}
}

// WrapKind returns a KindError wrapping err.
func WrapKind(op string, kind, err error) *KindError {
	return &KindError{Op: op, Kind: kind, Err: err}
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Is reports whether target is the error's kind.
func (e *KindError) Is(target error) bool { return target == e.Kind }

func (e *KindError) Unwrap() error { return e.Err }

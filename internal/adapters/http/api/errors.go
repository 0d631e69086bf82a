package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors. Errors returned by Dependencies are mapped
// to a status code by kind.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("service unavailable")
)

// Error records the operation that failed and the kind of failure.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind for op.
func NewKind(op string, kind error) error { return &Error{Op: op, Kind: kind} }

// WrapKind wraps err as kind for op.
func WrapKind(op string, kind, err error) error { return &Error{Op: op, Kind: kind, Err: err} }

// Wrap wraps err for op and keeps the kind of err, if any.
func Wrap(op string, err error) error { return &Error{Op: op, Err: err} }

// NewSentinel returns a sentinel error with its own message that is
// classified as kind.
func NewSentinel(msg string, kind error) error { return &sentinel{msg: msg, kind: kind} }

type sentinel struct {
	msg  string
	kind error
}

func (s *sentinel) Error() string { return s.msg }
func (s *sentinel) Unwrap() error { return s.kind }

// statusOf maps an error to an HTTP status and a response code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return statusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound):
		return statusNotFound, "not_found"
	case errors.Is(err, ErrConflict):
		return statusConflict, "conflict"
	case errors.Is(err, ErrBackpressure):
		return statusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable):
		return statusUnavailable, "unavailable"
	default:
		return statusInternalError, "internal_error"
	}
}

package api

import (
	"errors"
	"net/http"

	service "github.com/okian/facetally/internal/app"
	"github.com/okian/facetally/internal/domain/consensus"
	"github.com/okian/facetally/internal/domain/registry"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrBackpressure  = errors.New("backpressure")
	ErrUnavailable   = errors.New("service unavailable")
	ErrNotRecorded   = errors.New("attendance not recorded")
	ErrReloadFailed  = errors.New("registry reload failed")
	ErrInternal      = errors.New("internal error")
	ErrUnimplemented = errors.New("not implemented")
)

// Error carries the failing handler op and the kind used to pick a status.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns an error of kind without a cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind attaches op and kind to err.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap attaches op to err and derives the kind from the error chain.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return WrapKind(op, kindOf(err), err)
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, consensus.ErrNoFrames):
		return ErrBadRequest
	case errors.Is(err, service.ErrBackpressure):
		return ErrBackpressure
	case errors.Is(err, service.ErrNotStarted):
		return ErrUnavailable
	case errors.Is(err, service.ErrAttendanceNotRecorded):
		return ErrNotRecorded
	case errors.Is(err, registry.ErrRebuild):
		return ErrReloadFailed
	case errors.Is(err, service.ErrNoLoader), errors.Is(err, service.ErrNoHistory):
		return ErrUnimplemented
	}
	return ErrInternal
}

// statusOf maps an error to its HTTP status and response code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, ErrNotRecorded):
		return http.StatusInternalServerError, "attendance_not_recorded"
	case errors.Is(err, ErrReloadFailed):
		return http.StatusInternalServerError, "reload_failed"
	case errors.Is(err, ErrUnimplemented):
		return http.StatusNotImplemented, "not_implemented"
	}
	return http.StatusInternalServerError, "internal"
}

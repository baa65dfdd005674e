package api

import (
	"errors"
	"net/http"

	"github.com/okian/pss/internal/adapters/repository"
	"github.com/okian/pss/internal/domain/catalog"
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/registry"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrUnavailable = errors.New("feature not configured")
	ErrInternal    = errors.New("internal error")
)

// Error carries the failing operation and a kind alongside the cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Op + ": " + e.Kind.Error()
	case e.Kind == nil || errors.Is(e.Err, e.Kind):
		return e.Op + ": " + e.Err.Error()
	default:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
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

// Wrap tags err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapKind tags err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewKind returns an error of kind with no further cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// statusFor maps domain errors to HTTP status and a short code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, catalog.ErrNotFound), errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrSameStatus):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrBadRequest), errors.Is(err, model.ErrInvalidStatus), errors.Is(err, model.ErrReasonRequired),
		errors.Is(err, model.ErrInvalidRequest), errors.Is(err, catalog.ErrInvalidPromotion):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, registry.ErrBadGrammar), errors.Is(err, registry.ErrEmptySchema):
		return http.StatusUnprocessableEntity, "invalid_grammar"
	case errors.Is(err, ErrUnavailable), errors.Is(err, catalog.ErrNoStore):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

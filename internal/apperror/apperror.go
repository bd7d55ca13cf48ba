package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies a failure surfaced by the order core.
type Kind string

const (
	KindNotFound                 Kind = "NOT_FOUND"
	KindInvalidOrderState        Kind = "INVALID_ORDER_STATE"
	KindInsufficientBudget       Kind = "INSUFFICIENT_BUDGET"
	KindCartItemsMissing         Kind = "CART_ITEMS_MISSING"
	KindGateway                  Kind = "GATEWAY_ERROR"
	KindInconsistentCompensation Kind = "INCONSISTENT_COMPENSATION"
	KindForbidden                Kind = "FORBIDDEN"
	KindInvalidInput             Kind = "INVALID_INPUT"
	KindInternal                 Kind = "INTERNAL"
)

// Sentinels for errors.Is checks. A sentinel matches any *Error of the same kind.
var (
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrInvalidOrderState        = &Error{Kind: KindInvalidOrderState}
	ErrInsufficientBudget       = &Error{Kind: KindInsufficientBudget}
	ErrCartItemsMissing         = &Error{Kind: KindCartItemsMissing}
	ErrGateway                  = &Error{Kind: KindGateway}
	ErrInconsistentCompensation = &Error{Kind: KindInconsistentCompensation}
	ErrForbidden                = &Error{Kind: KindForbidden}
	ErrInvalidInput             = &Error{Kind: KindInvalidInput}
)

// Error is a structured failure carrying a kind and a human readable message.
// Status optionally overrides the HTTP status derived from Kind (used for
// provider rejections that already carry a 4xx code).
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error          { return New(KindNotFound, message) }
func InvalidOrderState(message string) *Error { return New(KindInvalidOrderState, message) }
func Forbidden(message string) *Error         { return New(KindForbidden, message) }
func InvalidInput(message string) *Error      { return New(KindInvalidInput, message) }

// KindOf returns the kind of the outermost *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	if appErr.Status != 0 {
		return appErr.Status
	}

	switch appErr.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidOrderState:
		return http.StatusConflict
	case KindInsufficientBudget:
		return http.StatusUnprocessableEntity
	case KindCartItemsMissing, KindInvalidInput:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

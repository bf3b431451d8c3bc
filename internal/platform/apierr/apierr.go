package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound covers both "missing" and "owned by someone else".
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized means no authenticated caller is attached to the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is returned for input that fails validation.
	ErrInvalidArgument = errors.New("invalid argument")
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Invalid wraps a validation failure on field so handlers report it as 400.
func Invalid(field, reason string) *Error {
	return New(http.StatusBadRequest, "invalid_request", fmt.Errorf("Invalid %s: %s", field, reason))
}

// Is lets errors.Is(err, ErrInvalidArgument) match any 400 Error.
func (e *Error) Is(target error) bool {
	return e != nil && target == ErrInvalidArgument && e.Status == http.StatusBadRequest
}

// Classify maps err to an HTTP status and code. Unknown errors become 500
// with fallbackCode.
func Classify(err error, fallbackCode string) (int, string) {
	var ae *Error
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &ae) && ae.Status != 0:
		return ae.Status, ae.Code
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, fallbackCode
	}
}

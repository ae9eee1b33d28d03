// Package errs defines the error taxonomy shared by every ingest path, the
// sync processor, and the HTTP surface. Each kind knows its own HTTP status
// and machine-readable code so a single echo.HTTPErrorHandler can render the
// {success:false, error, code, message, details?} shape uniformly.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the error taxonomy's fixed categories.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindNotFound       Kind = "not_found"
	KindUnauthorized   Kind = "unauthorized"
	KindForbidden      Kind = "forbidden"
	KindRateLimited    Kind = "rate_limit_exceeded"
	KindUpstream       Kind = "upstream_error"
	KindStore          Kind = "store_error"
	KindInternal       Kind = "internal_error"
)

var statusByKind = map[Kind]int{
	KindValidation:   http.StatusBadRequest,
	KindNotFound:     http.StatusNotFound,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindRateLimited:  http.StatusTooManyRequests,
	KindUpstream:     http.StatusBadGateway,
	KindStore:        http.StatusServiceUnavailable,
	KindInternal:     http.StatusInternalServerError,
}

// Error is the concrete type every core component returns for a classified
// failure. Components that only need "something went wrong" should still
// pick the narrowest applicable Kind rather than defaulting to Internal.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code the HTTP surface should respond with.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Code returns the stable machine-readable code for API responses.
func (e *Error) Code() string { return string(e.Kind) }

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func NotFound(message string) *Error { return newErr(KindNotFound, message, nil) }

func Unauthorized(message string) *Error { return newErr(KindUnauthorized, message, nil) }

func Forbidden(message string) *Error { return newErr(KindForbidden, message, nil) }

func RateLimited(message string) *Error { return newErr(KindRateLimited, message, nil) }

func Upstream(message string, cause error) *Error { return newErr(KindUpstream, message, cause) }

func Store(message string, cause error) *Error { return newErr(KindStore, message, cause) }

func Internal(message string, cause error) *Error { return newErr(KindInternal, message, cause) }

// As extracts an *Error from err, if any, following the same pattern as the
// standard library's errors.As without requiring callers to import errors
// for this one common case.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Package errors provides coded errors shared by every layer of the
// service. Handlers map codes to HTTP statuses; everything below them
// deals only in codes.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for transport mapping and logging.
type Code string

const (
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeForbidden    Code = "FORBIDDEN"
	ErrCodeUnauthorized Code = "UNAUTHORIZED"
	ErrCodeConflict     Code = "CONFLICT"
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInternal     Code = "INTERNAL"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports that a named resource does not exist.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

// Forbidden reports an authorization failure. The message must name
// what the caller lacked (level, role or ownership).
func Forbidden(message string) *Error {
	return &Error{Code: ErrCodeForbidden, Message: message}
}

// InvalidInput reports a validation failure on a specific field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, message)}
}

// CodeOf returns the code carried by err, or ErrCodeInternal when err
// is not a coded error.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// MessageOf returns the caller-safe message for err. Internal errors
// yield a generic message so infrastructure detail never leaks.
func MessageOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) && e.Code != ErrCodeInternal {
		return e.Message
	}
	return "internal server error"
}

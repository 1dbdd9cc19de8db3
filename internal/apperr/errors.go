// Package apperr defines the error taxonomy shared by the gateway core.
// Every error carries a stable code that log pipelines can group on;
// user-facing wording is decided by the caller, never taken from here.
package apperr

import (
	"errors"
	"fmt"
)

const (
	// CodeNotFound marks identifiers or orders absent on the backend.
	CodeNotFound = "NOT_FOUND"
	// CodeRemoteFailure marks transient backend failures: network errors,
	// timeouts, and non-zero application error codes.
	CodeRemoteFailure = "REMOTE_FAILURE"
	// CodeInvalidInput marks malformed command arguments.
	CodeInvalidInput = "INVALID_INPUT"
	// CodeExpiredState marks a verification code submitted after its TTL.
	CodeExpiredState = "EXPIRED_STATE"
	// CodeNoActiveSession marks a code submitted with nothing pending.
	CodeNoActiveSession = "NO_ACTIVE_SESSION"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	code    string
	message string
	cause   error
}

// New constructs a coded error without a cause.
func New(code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap constructs a coded error around an underlying cause.
func Wrap(code, message string, cause error) *Error {
	return &Error{code: code, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the stable taxonomy code of the error.
func (e *Error) Code() string {
	if e == nil {
		return ""
	}
	return e.code
}

// Unwrap exposes the cause for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// CodeOf returns the taxonomy code of err, or empty when err carries none.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}

// HasCode reports whether err (or any wrapped error) carries the given code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

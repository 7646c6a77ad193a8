package memory

import (
	"errors"
	"fmt"
)

// ErrorCode classifies memory failures.
type ErrorCode string

const (
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeInvalidReference   ErrorCode = "INVALID_REFERENCE"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeMalformedMetadata  ErrorCode = "MALFORMED_METADATA"
	ErrCodeInvalidConfig      ErrorCode = "INVALID_CONFIG"
)

// Error is a coded memory error. Two Errors match under errors.Is when their
// codes are equal.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewError creates an Error without a cause.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error around cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf returns the code of the first Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound           = NewError(ErrCodeNotFound, "not found")
	ErrInvalidReference   = NewError(ErrCodeInvalidReference, "invalid reference")
	ErrStorageUnavailable = NewError(ErrCodeStorageUnavailable, "storage unavailable")
	ErrInvalidInput       = NewError(ErrCodeInvalidInput, "invalid input")
)

package queue

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes queue failures.
type ErrorCode string

const (
	// ErrCodeStorageUnavailable means the local database could not be opened or used.
	// Callers degrade to "submitting requires network".
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// ErrCodeNotFound means no record has the requested id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Error is a queue failure with a stable code.
type Error struct {
	Code    ErrorCode
	Message string
	ID      int64
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ID != 0 {
		msg = fmt.Sprintf("%s (id=%d)", msg, e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsStorageUnavailable returns true if err wraps a STORAGE_UNAVAILABLE error.
func IsStorageUnavailable(err error) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == ErrCodeStorageUnavailable
	}
	return false
}

// IsNotFound returns true if err wraps a NOT_FOUND error.
func IsNotFound(err error) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == ErrCodeNotFound
	}
	return false
}

func unavailable(msg string, err error) error {
	return &Error{Code: ErrCodeStorageUnavailable, Message: msg, Err: err}
}

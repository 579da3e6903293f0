package worker

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes worker failures.
type ErrorCode string

const (
	// ErrCodeCacheWriteFailed means a response could not be stored. At request
	// time this is logged and the response is still served.
	ErrCodeCacheWriteFailed ErrorCode = "CACHE_WRITE_FAILED"

	// ErrCodeInstallFailed means a manifest URL could not be fetched or stored.
	ErrCodeInstallFailed ErrorCode = "INSTALL_MANIFEST_FAILED"

	// ErrCodeNotInstalled means Activate was called before a successful Install.
	ErrCodeNotInstalled ErrorCode = "NOT_INSTALLED"
)

// Error is a worker failure with a stable code.
type Error struct {
	Code    ErrorCode
	Message string
	URL     string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.URL != "" {
		msg = fmt.Sprintf("%s (url=%s)", msg, e.URL)
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

func hasCode(err error, code ErrorCode) bool {
	var we *Error
	if errors.As(err, &we) {
		return we.Code == code
	}
	return false
}

// IsCacheWriteFailed returns true if err wraps a CACHE_WRITE_FAILED error.
func IsCacheWriteFailed(err error) bool { return hasCode(err, ErrCodeCacheWriteFailed) }

// IsInstallFailed returns true if err wraps an INSTALL_MANIFEST_FAILED error.
func IsInstallFailed(err error) bool { return hasCode(err, ErrCodeInstallFailed) }

// IsNotInstalled returns true if err wraps a NOT_INSTALLED error.
func IsNotInstalled(err error) bool { return hasCode(err, ErrCodeNotInstalled) }

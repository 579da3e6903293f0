package ledger

import (
	"errors"
	"fmt"
)

// ValidationError reports a draft that cannot be queued.
type ValidationError struct {
	// Field names the offending input ("amount", "type", ...).
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidationError returns true if err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

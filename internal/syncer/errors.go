package syncer

import (
	"errors"
	"fmt"
)

// ErrCodeReplayFailed identifies a replay the server did not confirm.
const ErrCodeReplayFailed = "REPLAY_FAILED"

// ReplayError reports a queued record the server did not accept.
//
// Exactly one of StatusCode (the server answered non-2xx) or Err (transport
// failure, timeout) is set. The record stays queued either way.
type ReplayError struct {
	// ID is the queued record's id.
	ID int64

	// StatusCode is the final HTTP status, 0 on transport failure.
	StatusCode int

	// Err is the transport error, nil when the server answered.
	Err error
}

// Error implements the error interface.
func (e *ReplayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: transaction %d: %v", ErrCodeReplayFailed, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: transaction %d: server answered %d", ErrCodeReplayFailed, e.ID, e.StatusCode)
}

// Unwrap returns the transport error.
func (e *ReplayError) Unwrap() error {
	return e.Err
}

// IsReplayFailed returns true if err wraps a *ReplayError.
func IsReplayFailed(err error) bool {
	var re *ReplayError
	return errors.As(err, &re)
}

package interview

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionCompleted = errors.New("interview already completed")
	ErrTurnInProgress   = errors.New("a turn is already in progress")
	ErrEmptyMessage     = errors.New("message is required")
	ErrNotStarted       = errors.New("interview has not started")
	ErrAlreadyStarted   = errors.New("interview already started")
)

// TurnError reports a provider failure during a turn. The session stays in
// its previous state and the turn can be retried.
type TurnError struct {
	SessionID string
	Err       error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed for session %s: %v", e.SessionID, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

package session

import "errors"

var (
	// ErrAlreadyTerminal is returned for submit/terminate attempts on a
	// session that has already reached completed or terminated. Callers treat
	// it as an informational no-op, not a failure.
	ErrAlreadyTerminal = errors.New("session already in a terminal state")

	// ErrSessionTerminal is returned when a violation arrives after the
	// session ended. The signal is dropped and logged, never recorded.
	ErrSessionTerminal = errors.New("violation rejected: session has ended")

	// ErrInvalidCommand is returned for admin commands missing the actor or
	// reason required for the audit trail. Rejected before any state change.
	ErrInvalidCommand = errors.New("invalid command: actor and reason are required")

	ErrNotFound = errors.New("session not found")
)

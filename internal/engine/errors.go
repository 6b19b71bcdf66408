package engine

import (
	"errors"
	"fmt"
)

// Input-validation errors are fatal to the single call: fail fast, no retry,
// no partial result. Per-dimension scoring failures never surface as errors;
// each scoring function treats missing or invalid fields as signal-absent.
var (
	// ErrNilSession is returned when a nil session is passed to an analyzer.
	ErrNilSession = errors.New("session is required")

	// ErrMissingMessages is returned when a session carries no messages
	// field at all. A present-but-empty message list is valid input.
	ErrMissingMessages = errors.New("session messages are required")
)

// ValidateSession checks the invariants every analyzer requires of its
// input. A zero-message session passes; a nil message slice does not.
func ValidateSession(s *Session) error {
	if s == nil {
		return ErrNilSession
	}
	if s.SessionID == "" {
		return fmt.Errorf("%w: empty session_id", ErrNilSession)
	}
	if s.Messages == nil {
		return fmt.Errorf("%w: session %s", ErrMissingMessages, s.SessionID)
	}
	return nil
}

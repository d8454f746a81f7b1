package session

import "errors"

var (
	// ErrSlotTaken means another session with a blocking status already
	// occupies the therapist's slot.
	ErrSlotTaken = errors.New("booking slot already taken")

	// ErrInvalidTransition means the session is not in the state the
	// requested transition starts from.
	ErrInvalidTransition = errors.New("invalid session state transition")

	ErrNotFound = errors.New("session not found")
)

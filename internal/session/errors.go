package session

import "errors"

var (
	// ErrInvalidInput is returned when a session cannot be constructed.
	ErrInvalidInput = errors.New("invalid session input")
	// ErrInvalidStateTransition is returned for a mutation outside the allowed status.
	ErrInvalidStateTransition = errors.New("invalid session state transition")
	// ErrUnknownReference is returned when an answer names a question or choice not in the set.
	ErrUnknownReference = errors.New("unknown question or choice")
	// ErrOutOfRange is returned for a navigation index outside the question list.
	ErrOutOfRange = errors.New("question index out of range")
	// ErrSubmissionFailure wraps any error returned by the grader.
	ErrSubmissionFailure = errors.New("submission failed")
	// ErrClosed is returned for actions sent to a controller that has been torn down.
	ErrClosed = errors.New("session closed")
)

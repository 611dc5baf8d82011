package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("meeting not found")
	ErrEnded            = errors.New("meeting has ended")
	ErrForbidden        = errors.New("host privileges required")
	ErrNotPending       = errors.New("participant is not in the waiting room")
	ErrAlreadyJoined    = errors.New("participant already joined")
	ErrCodeTaken        = errors.New("meeting code already in use")
	ErrCodeExhausted    = errors.New("could not generate a unique meeting code")
	ErrDuplicateMeeting = errors.New("a meeting with this title and start time already exists")
	ErrUpstream         = errors.New("upstream dependency failed")
)

// ValidationError carries a field-level message back to the HTTP boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

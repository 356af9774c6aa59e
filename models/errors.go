package models

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedCandidate marks a candidate missing required fields. The merger skips it.
	ErrMalformedCandidate = errors.New("malformed candidate")
	// ErrPersistenceUnavailable is returned when the backing store cannot be reached.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrConflict is returned when a collection changed between load and save.
	ErrConflict = errors.New("collection revision conflict")
	// ErrCollaboratorTimeout is returned when an external call exceeded its deadline.
	ErrCollaboratorTimeout = errors.New("collaborator timeout")
	// ErrCollaboratorDisabled marks a collaborator that is not configured.
	ErrCollaboratorDisabled = errors.New("collaborator disabled")
	// ErrQuotaExceeded is returned once a session used up its new-computation quota.
	ErrQuotaExceeded = errors.New("session quota exceeded")
	// ErrSessionNotFound is returned for unknown or expired session handles.
	ErrSessionNotFound = errors.New("session not found")
)

// CollaboratorError wraps a failure reported by an external collaborator.
type CollaboratorError struct {
	Collaborator string
	Transient    bool
	Err          error
}

func (e *CollaboratorError) Error() string {
	if e.Transient {
		return fmt.Sprintf("%s failed (transient): %v", e.Collaborator, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

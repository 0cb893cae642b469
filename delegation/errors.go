package delegation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the delegation engine. Callers match with errors.Is.
var (
	// ErrNotFound indicates an unknown task or agent ID.
	ErrNotFound = errors.New("not found")

	// ErrNoAgentAvailable indicates that no active agent exists or no
	// candidate scored at or above the acceptance threshold. The task is
	// left pending and delegation can be retried.
	ErrNoAgentAvailable = errors.New("no agent available")

	// ErrInvalidTransition indicates a status change the task lifecycle
	// does not allow, e.g. delegating a task that is already assigned.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports a rejected task submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConsistencyError wraps a store-level transaction failure. The compound
// update was rolled back; no partial state was committed.
type ConsistencyError struct {
	Op  string
	Err error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

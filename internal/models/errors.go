package models

import (
	"errors"
	"fmt"
)

// DuplicateError reports a violated uniqueness invariant: client id, role
// name per container, or protocol-mapper (protocol, name). It is always
// raised before any mutation is applied.
type DuplicateError struct {
	Resource string
	Name     string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s named %q already exists", e.Resource, e.Name)
}

// NotFoundError reports a missing entity id or name at lookup time.
type NotFoundError struct {
	Resource string
	Ref      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Ref)
}

// ConflictError aborts a non-skipping partial import when at least one
// incoming item collides with existing data. Nothing has been applied.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("import conflict: %s", e.Reason)
}

// CommitError means the persistence flush failed after in-memory mutation
// succeeded. The session is no longer usable; the caller must abort it.
type CommitError struct {
	SessionID string
	Err       error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed for session %s: %v", e.SessionID, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

func IsDuplicate(err error) bool {
	var d *DuplicateError
	return errors.As(err, &d)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

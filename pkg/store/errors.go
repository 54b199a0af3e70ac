package store

import (
	"errors"
	"fmt"
)

type ErrNotFound struct {
}

func (e *ErrNotFound) Error() string {
	return "not found"
}

func IsNotFound(err error) bool {
	var notFound *ErrNotFound
	return errors.As(err, &notFound)
}

// ErrConstraintViolation means a uniqueness rule rejected a mutation,
// usually because a concurrent actor got there first. Callers treat it
// as benign and re-read current state.
type ErrConstraintViolation struct {
	Constraint string
}

func (e *ErrConstraintViolation) Error() string {
	return fmt.Sprintf("constraint violation: %s", e.Constraint)
}

func IsConstraintViolation(err error) bool {
	var violation *ErrConstraintViolation
	return errors.As(err, &violation)
}

// ErrUnavailable means the store could not be reached. Transient and
// retryable.
type ErrUnavailable struct {
	Cause error
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Cause)
}

func IsUnavailable(err error) bool {
	var unavailable *ErrUnavailable
	return errors.As(err, &unavailable)
}

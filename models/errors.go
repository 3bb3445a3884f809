package models

import (
	"errors"
	"fmt"
)

type PersistenceErrorKind string

const (
	PersistenceConstraintViolation PersistenceErrorKind = "ConstraintViolation"
	PersistenceOther               PersistenceErrorKind = "Other"
)

// PersistenceError wraps a store failure with its classification.
type PersistenceError struct {
	Kind PersistenceErrorKind
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func IsConstraintViolation(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Kind == PersistenceConstraintViolation
}

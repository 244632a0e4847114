// Package dalerr defines the store error kinds the services branch on.
package dalerr

import "errors"

var (
	// ErrNotFound is returned when no record has the requested primary key.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when a write violates a unique constraint.
	ErrAlreadyExists = errors.New("record violates unique constraint")
	// ErrConcurrentUpdate is returned by conditional updates whose precondition no longer holds.
	ErrConcurrentUpdate = errors.New("record was modified concurrently")
)

// Package sentinel names the storage facts the shelter engine reacts to.
// Stores wrap them with context; internal/shelter/storeerr turns them into
// coded domain errors at the service boundary.
package sentinel

import "errors"

var (
	// ErrNotFound: no row for the key, or a foreign key points nowhere.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a uniqueness rule or a concurrent transaction won. Retrying may succeed.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: the write would break a schema rule such as a negative population.
	ErrInvalidState = errors.New("invalid state")
)

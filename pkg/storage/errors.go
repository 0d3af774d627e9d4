// Package storage defines the sentinel errors shared by the gateway's
// storage implementations.
package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when an insert violates a uniqueness
	// constraint. Callers treat this as an expected control-flow branch,
	// not an exceptional failure.
	ErrAlreadyExists = errors.New("record already exists")
)

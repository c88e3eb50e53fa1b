package store

import "errors"

var (
	// ErrNotFound is returned by Get-style lookups when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("already exists")
)

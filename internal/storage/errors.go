package storage

import "errors"

var (
	// ErrDuplicate is returned when attempting to create a resource that already exists.
	ErrDuplicate = errors.New("resource already exists")

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrLamportsOverflow is returned when a balance does not fit in a SQLite integer.
	ErrLamportsOverflow = errors.New("lamports exceed storable range")
)

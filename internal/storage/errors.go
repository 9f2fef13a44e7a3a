package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a batch repeats a (ticker, date) key
	// in a store that enforces uniqueness.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidSchema is returned when a schema name is not on the allow-list.
	ErrInvalidSchema = errors.New("schema not allowed")
)

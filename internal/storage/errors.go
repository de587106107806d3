package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose key
	// already exists. Trader configs are created exactly once.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleWrite is returned when an execution commit would move
	// last_swap_timestamp backwards. Timestamps only advance.
	ErrStaleWrite = errors.New("stale write: last swap timestamp may only advance")
)

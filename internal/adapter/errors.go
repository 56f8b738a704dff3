package adapter

import (
	"errors"
)

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrPreconditionFailed is returned when If-Match does not match the
	// stored note version.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrLimitExceeded is returned when a demo account hits a size or count
	// limit.
	ErrLimitExceeded = errors.New("limit exceeded")
)

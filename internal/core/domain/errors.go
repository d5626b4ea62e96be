package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested package, resource type, resource or index was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate registration (index xpath/label, resource name, ...)
	ErrAlreadyExists = errors.New("already exists")

	// ErrInUse indicates a package or resource type that still has dependents
	ErrInUse = errors.New("in use")

	// ErrInvalidInput indicates a syntax or validation failure in caller supplied data
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidDocument indicates a document without a parsed XML tree was handed to the indexer
	ErrInvalidDocument = errors.New("invalid document")

	// ErrLockNotAcquired indicates another instance holds the lock for the requested operation
	ErrLockNotAcquired = errors.New("lock not acquired")

	// ErrNotConfigured indicates an optional backend (task queue, index views) is not set up
	ErrNotConfigured = errors.New("not configured")

	// ErrValueSkipped indicates a source value that cannot be coerced to the index type.
	// It never reaches callers; the indexer drops such values.
	ErrValueSkipped = errors.New("value skipped")
)

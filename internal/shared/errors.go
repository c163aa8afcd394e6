package shared

import "errors"

var (
	// ErrNotFound indicates a referenced user, role or collection is absent.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique-name constraint violation.
	ErrDuplicate = errors.New("duplicate")
	// ErrInvalidGrant indicates a permission or scope outside the closed set.
	ErrInvalidGrant = errors.New("invalid grant")
	// ErrSerialization indicates an encode or decode failure.
	ErrSerialization = errors.New("serialization failure")
	// ErrStorage indicates an I/O or transaction failure in the underlying store.
	ErrStorage = errors.New("storage failure")
	// ErrUnauthorized indicates password verification failed.
	ErrUnauthorized = errors.New("unauthorized")
)

package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInactive indicates an entity exists but is deactivated.
	ErrInactive = errors.New("entity inactive")
)

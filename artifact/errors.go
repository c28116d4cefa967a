package artifact

import "errors"

var (
	// ErrNotFound is returned when an artifact (or version) for the given
	// session does not exist in the underlying store.
	ErrNotFound = errors.New("artifact not found")
)

package engine

import "errors"

var (
	// ErrNotFound is returned when a key is absent. This is an engine-layer
	// sentinel; the lindex package may translate it into its public error
	// contract.
	ErrNotFound = errors.New("not found")

	// ErrRetry signals a transient structural conflict: the targeted group
	// is compacting, splitting, or already retired. The caller must re-route
	// the operation through the live root rather than spin inside the group,
	// since the correct group for the key may have changed.
	ErrRetry = errors.New("structural change in progress, retry against root")
)

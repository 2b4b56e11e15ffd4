package lindex

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lindex/engine"
)

var (
	// ErrNotFound is returned when a key is absent. A negative lookup is a
	// normal result, not a failure mode.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("index is closed")

	// ErrInvalidWorker is returned when an operation's worker id lies
	// outside [0, workers).
	ErrInvalidWorker = errors.New("worker id out of range")

	// ErrInvalidConfig is returned at construction when a tunable is not
	// strictly positive. The index refuses to start.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrBulkLoad is returned at construction when the initial key set is
	// not sorted and unique, or keys and values differ in length.
	ErrBulkLoad = errors.New("invalid bulk load data")
)

// translateError maps engine-layer sentinels onto the public error contract.
// Transient structural conflicts (engine.ErrRetry) never reach this point;
// they are absorbed by the facade's re-route loops.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func configError(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

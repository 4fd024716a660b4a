package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrIncompatibleModel is returned when a model's node layout differs
	// from the models already registered.
	ErrIncompatibleModel = errors.New("registry: incompatible model")
	// ErrNotFound is returned for unknown or not yet applied model ids.
	ErrNotFound = errors.New("registry: model not found")
	// ErrDuplicateKey is returned when a model key is registered twice.
	ErrDuplicateKey = errors.New("registry: duplicate model key")
	// ErrPayloadTooSmall is returned when a payload cannot hold every node.
	ErrPayloadTooSmall = errors.New("registry: payload too small")
)

// ErrSlotSizeMismatch describes which layout field of a model disagrees.
//
// It matches ErrIncompatibleModel with errors.Is.
type ErrSlotSizeMismatch struct {
	Key      string
	Field    string
	Expected uint32
	Actual   uint32
}

func (e *ErrSlotSizeMismatch) Error() string {
	return fmt.Sprintf("registry: model %q: %s mismatch: expected %d, got %d", e.Key, e.Field, e.Expected, e.Actual)
}

func (e *ErrSlotSizeMismatch) Unwrap() error { return ErrIncompatibleModel }

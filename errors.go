package lodstream

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lodstream/blobstore"
	"github.com/hupe1980/lodstream/bvh"
	"github.com/hupe1980/lodstream/cache"
	"github.com/hupe1980/lodstream/config"
	"github.com/hupe1980/lodstream/model"
	"github.com/hupe1980/lodstream/registry"
	"github.com/hupe1980/lodstream/stream"
)

var (
	// ErrNotFound is returned for unknown models, nodes or blobs.
	ErrNotFound = errors.New("not found")

	// ErrNotResident is returned by Slot when the node has no committed bytes.
	ErrNotResident = errors.New("node not resident")

	// ErrCorrupt is returned when a tree file cannot be decoded.
	ErrCorrupt = errors.New("corrupt tree file")

	// ErrIncompatibleModel is returned when a model's node layout differs
	// from the session's.
	ErrIncompatibleModel = errors.New("incompatible model")

	// ErrPoolFull is returned when the slot pool has no room for a node.
	ErrPoolFull = errors.New("slot pool full")

	// ErrNotLocked is returned for reconcile steps outside a locked pass.
	ErrNotLocked = errors.New("pool not locked")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")

	// ErrNoModels is returned by Open when the catalog lists nothing.
	ErrNoModels = errors.New("no models")

	// ErrInvalidOption is returned for unusable option values.
	ErrInvalidOption = errors.New("invalid option")

	// ErrInvalidPriority is returned by Request for a NaN priority.
	ErrInvalidPriority = errors.New("invalid priority")
)

// ErrSlotSizeMismatch reports the layout field that differs from the
// session's first model. It unwraps to ErrIncompatibleModel.
type ErrSlotSizeMismatch = registry.ErrSlotSizeMismatch

// ErrNodeOutOfRange indicates a node id beyond the model's tree.
//
// The underlying error, if any, is reachable through errors.Unwrap.
type ErrNodeOutOfRange struct {
	Model    model.ModelID
	Node     model.NodeID
	NumNodes uint32
	cause    error
}

func (e *ErrNodeOutOfRange) Error() string {
	return fmt.Sprintf("node %d out of range for model %d (%d nodes)", e.Node, e.Model, e.NumNodes)
}

func (e *ErrNodeOutOfRange) Unwrap() error { return e.cause }

// Is makes errors.Is(err, ErrNotFound) hold for out of range nodes.
func (e *ErrNodeOutOfRange) Is(target error) bool { return target == ErrNotFound }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var nr *ErrNodeOutOfRange
	if errors.As(err, &nr) {
		return err
	}

	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, blobstore.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, bvh.ErrCorrupt), errors.Is(err, bvh.ErrInvalidTree):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	case errors.Is(err, registry.ErrIncompatibleModel), errors.Is(err, registry.ErrPayloadTooSmall):
		return fmt.Errorf("%w: %w", ErrIncompatibleModel, err)
	case errors.Is(err, cache.ErrPoolFull):
		return fmt.Errorf("%w: %w", ErrPoolFull, err)
	case errors.Is(err, stream.ErrNotLocked):
		return fmt.Errorf("%w: %w", ErrNotLocked, err)
	case errors.Is(err, stream.ErrClosed), errors.Is(err, cache.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, config.ErrNoModels):
		return fmt.Errorf("%w: %w", ErrNoModels, err)
	}

	return err
}

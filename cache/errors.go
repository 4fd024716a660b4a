package cache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lodstream/model"
)

var (
	// ErrPoolFull is returned when no slot is free and no victim may be evicted.
	ErrPoolFull = errors.New("cache: slot pool full")
	// ErrAlreadyIndexed is returned when a node already owns a slot.
	ErrAlreadyIndexed = errors.New("cache: node already owns a slot")
	// ErrSlotOutOfRange is returned for slot ids beyond the capacity.
	ErrSlotOutOfRange = errors.New("cache: slot out of range")
	// ErrClosed is returned by a closed arena.
	ErrClosed = errors.New("cache: arena closed")
)

// StateError reports a slot transition attempted from the wrong state.
type StateError struct {
	Slot  model.SlotID
	Op    string
	State SlotState
	Owner model.Key
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cache: cannot %s slot %d in state %s (owner %s)", e.Op, e.Slot, e.State, e.Owner)
}

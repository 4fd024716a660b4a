package budget

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRatio is returned when a memory ratio is outside (0, 1].
var ErrInvalidRatio = errors.New("budget: ratio must be in (0, 1]")

// Budget returns floor(total * ratio). A non-positive ratio yields 0 and a
// ratio above 1 is clamped to 1.
func Budget(total uint64, ratio float64) uint64 {
	if ratio <= 0 || math.IsNaN(ratio) {
		return 0
	}

	if ratio >= 1 {
		return total
	}

	return uint64(float64(total) * ratio)
}

// MaxElementsAllowed returns how many elements of elementSize bytes still fit
// into budget when occupied bytes are already in use.
func MaxElementsAllowed(budget, occupied, elementSize uint64) uint64 {
	if elementSize == 0 || occupied >= budget {
		return 0
	}

	return (budget - occupied) / elementSize
}

// MaxElementsInBuffer returns how many elements fit into a buffer of bufferBytes.
func MaxElementsInBuffer(bufferBytes, elementSize uint64) uint64 {
	if elementSize == 0 {
		return 0
	}

	return bufferBytes / elementSize
}

// Status captures a memory budget for elements of a fixed size.
type Status struct {
	total       uint64
	budget      uint64
	elementSize uint64
}

// NewStatus derives a budget from the total system memory.
func NewStatus(ratio float64, elementSize uint64) (Status, error) {
	if ratio <= 0 || ratio > 1 || math.IsNaN(ratio) {
		return Status{}, fmt.Errorf("%w: got %v", ErrInvalidRatio, ratio)
	}

	total, err := TotalMemory()
	if err != nil {
		return Status{}, err
	}

	return NewStatusFor(total, ratio, elementSize), nil
}

// NewStatusFor derives a budget from an explicit total.
func NewStatusFor(total uint64, ratio float64, elementSize uint64) Status {
	return Status{
		total:       total,
		budget:      Budget(total, ratio),
		elementSize: elementSize,
	}
}

// Total returns the memory total the budget was derived from.
func (s Status) Total() uint64 { return s.total }

// Budget returns the byte budget.
func (s Status) Budget() uint64 { return s.budget }

// ElementSize returns the element size in bytes.
func (s Status) ElementSize() uint64 { return s.elementSize }

// MaxElementsAllowed returns how many more elements fit when occupied bytes
// are already used.
func (s Status) MaxElementsAllowed(occupied uint64) uint64 {
	return MaxElementsAllowed(s.budget, occupied, s.elementSize)
}

// MaxElementsInBuffer returns how many elements fit into bufferBytes.
func (s Status) MaxElementsInBuffer(bufferBytes uint64) uint64 {
	return MaxElementsInBuffer(bufferBytes, s.elementSize)
}

package bvh

import "errors"

var (
	// ErrCorrupt is returned when a file violates the segment layout.
	ErrCorrupt = errors.New("bvh: corrupt stream")
	// ErrInvalidTree is returned when a tree cannot be serialized.
	ErrInvalidTree = errors.New("bvh: invalid tree")
)

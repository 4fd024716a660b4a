package stream

import "errors"

var (
	// ErrNotLocked is returned by consumer operations that require the
	// explicit pool lock.
	ErrNotLocked = errors.New("stream: pool not locked")
	// ErrLocked is returned by Close while the consumer holds the lock.
	ErrLocked = errors.New("stream: pool locked")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("stream: pool closed")
	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("stream: invalid config")
)

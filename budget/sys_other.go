//go:build !linux && !darwin

package budget

import "errors"

// ErrUnsupported is returned where system memory cannot be queried.
var ErrUnsupported = errors.New("budget: memory query not supported on this platform")

// TotalMemory is not available on this platform.
func TotalMemory() (uint64, error) { return 0, ErrUnsupported }

// AvailableMemory is not available on this platform.
func AvailableMemory() (uint64, error) { return 0, ErrUnsupported }

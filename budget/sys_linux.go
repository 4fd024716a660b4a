//go:build linux

package budget

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// TotalMemory returns the installed physical memory in bytes.
func TotalMemory() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("budget: sysinfo: %w", err)
	}

	return uint64(info.Totalram) * uint64(info.Unit), nil
}

// AvailableMemory returns the free physical memory in bytes.
func AvailableMemory() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("budget: sysinfo: %w", err)
	}

	return (uint64(info.Freeram) + uint64(info.Bufferram)) * uint64(info.Unit), nil
}

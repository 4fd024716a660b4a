//go:build darwin

package budget

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// TotalMemory returns the installed physical memory in bytes.
func TotalMemory() (uint64, error) {
	v, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0, fmt.Errorf("budget: sysctl hw.memsize: %w", err)
	}

	return v, nil
}

// AvailableMemory returns an estimate of free memory in bytes.
func AvailableMemory() (uint64, error) {
	pages, err := unix.SysctlUint32("vm.page_free_count")
	if err != nil {
		return 0, fmt.Errorf("budget: sysctl vm.page_free_count: %w", err)
	}

	return uint64(pages) * uint64(unix.Getpagesize()), nil
}

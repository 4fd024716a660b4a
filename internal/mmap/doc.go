// Package mmap provides memory mappings for payload files and slot memory.
//
// Two kinds of mapping exist:
//
//   - [Open] maps a file read-only. Local payload stores use it to serve node
//     reads without a syscall per request.
//   - [Anonymous] maps zeroed, writable memory outside the Go heap. The slot
//     arena keeps its cells there so that a multi-gigabyte cache is invisible
//     to the garbage collector.
//
//	m, err := mmap.Anonymous(slots * slotSize)
//	if err != nil { ... }
//	defer m.Close()
//
//	cell := m.Bytes()[slot*slotSize : (slot+1)*slotSize]
//	copy(cell, payload)
//
// Slices returned by Bytes are valid only until the mapping is closed.
package mmap

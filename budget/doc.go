// Package budget turns a memory ratio into a number of fixed-size elements.
//
// The streaming cache sizes its slot pool once at startup. Callers pick a
// share of system memory (or an absolute byte count) and ask how many slots
// of a given size fit into it:
//
//	st, err := budget.NewStatus(0.5, slotSize)
//	slots := st.MaxElementsAllowed(0)
//
// All functions are pure except TotalMemory and AvailableMemory, which query
// the operating system.
package budget

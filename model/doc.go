// Package model defines core types used throughout lodstream.
//
// # Identity Types
//
//   - ModelID: Sequential identifier assigned by the registry (uint32)
//   - NodeID: Node index within a model's hierarchy (uint32)
//   - SlotID: Index of a fixed-size cell in the slot arena (uint32)
//   - Key: Composite (ModelID, NodeID) identifying one loadable unit
//
// # Work Types
//
//   - Priority: Consumer-assigned importance; higher loads first
//   - Job: A pending or in-flight load of one node into one slot
package model

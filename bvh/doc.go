// Package bvh reads and writes the segmented tree file that describes one
// point-cloud model.
//
// # File Layout
//
// A file is a sequence of segments. Every segment starts with a 32-byte
// header followed by its payload, zero padded to the next 32-byte boundary:
//
//	+-----------+----------+-----------+--------+------------------+
//	| tag [8]   | reserved | allocated | used   | payload, padding |
//	| "BVHX...."| u64      | u64       | u64    | allocated bytes  |
//	+-----------+----------+-----------+--------+------------------+
//
// The tag begins with the magic "BVHX" followed by a four byte kind:
//
//   - FILE: format version
//   - TREE: tree-wide parameters (exactly one)
//   - TEXT: opaque tree extension (at most one)
//   - NODE: per-node record, in ascending node order without gaps
//   - NEXT: opaque node extension, in ascending node order without gaps
//
// Readers skip segments by their allocated size alone, so segments with an
// unknown kind are ignored. All values are little-endian.
//
// # Payload File
//
// Surfel data lives next to the tree file with the extension replaced by
// ".lod". Node n occupies surfels_per_node * surfel_size bytes starting at
// n * surfels_per_node * surfel_size (see [NodeOffset]).
package bvh

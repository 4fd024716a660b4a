// Package ply reads PLY point cloud files, the usual input of the tree
// builder.
//
// The header is parsed into Elements whose Properties carry a PropertyKind:
// either a scalar of some ScalarType, or a list with a size type and an
// element type. Decode walks the body in ascii, binary_little_endian or
// binary_big_endian and reports every value to one Visitor.
//
//	pts := &ply.Points{}
//	hdr, err := ply.Decode(r, pts)
package ply

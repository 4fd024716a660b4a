package bvh

import (
	"path/filepath"
	"strings"
)

const (
	// Alignment is the byte boundary every segment is padded to.
	Alignment = 32
	// HeaderSize is the size of a segment header.
	HeaderSize = 32

	// VersionMajor and VersionMinor are written to the FILE segment.
	VersionMajor = 0
	VersionMinor = 1

	// PayloadExt is the extension of the surfel payload file.
	PayloadExt = ".lod"
	// TreeExt is the extension of the tree file.
	TreeExt = ".bvh"
)

// Kind is the four byte suffix of a segment tag.
type Kind [4]byte

var (
	magic = [4]byte{'B', 'V', 'H', 'X'}

	KindFile    = Kind{'F', 'I', 'L', 'E'}
	KindTree    = Kind{'T', 'R', 'E', 'E'}
	KindTreeExt = Kind{'T', 'E', 'X', 'T'}
	KindNode    = Kind{'N', 'O', 'D', 'E'}
	KindNodeExt = Kind{'N', 'E', 'X', 'T'}
)

func (k Kind) String() string { return string(k[:]) }

// segmentHeader precedes every payload.
type segmentHeader struct {
	Tag       [8]byte
	Reserved  uint64
	Allocated uint64
	Used      uint64
}

func (h segmentHeader) kind() Kind {
	var k Kind
	copy(k[:], h.Tag[4:])

	return k
}

func (h segmentHeader) hasMagic() bool {
	return h.Tag[0] == magic[0] && h.Tag[1] == magic[1] && h.Tag[2] == magic[2] && h.Tag[3] == magic[3]
}

func newHeader(k Kind, used uint64) segmentHeader {
	var h segmentHeader
	copy(h.Tag[:4], magic[:])
	copy(h.Tag[4:], k[:])
	h.Used = used
	h.Allocated = padded(used)

	return h
}

func padded(n uint64) uint64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

type fileSegment struct {
	Major    uint32
	Minor    uint32
	Reserved uint64
}

type treeSegment struct {
	SegmentID      uint32
	Depth          uint32
	NumNodes       uint32
	FanFactor      uint32
	SurfelsPerNode uint32
	SurfelSize     uint32
	Reserved0      uint32
	State          uint32
	Reserved1      uint64
	Reserved2      uint64
	Translation    Vec3
	Reserved3      uint32
}

type nodeSegment struct {
	SegmentID      uint32
	NodeID         uint32
	Centroid       Vec3
	Depth          uint32
	ReductionError float32
	AvgRadius      float32
	Visibility     uint32
	Reserved       uint32
	BoxMin         Vec3
	BoxMax         Vec3
}

// extPrefix leads both extension payloads; the opaque bytes follow.
type extPrefix struct {
	SegmentID uint32
	NodeID    uint32
}

const (
	fileSegmentSize = 16
	treeSegmentSize = 64
	nodeSegmentSize = 64
	extPrefixSize   = 8
)

// PayloadName returns the payload file that belongs to a tree file.
func PayloadName(treePath string) string {
	ext := filepath.Ext(treePath)

	return strings.TrimSuffix(treePath, ext) + PayloadExt
}

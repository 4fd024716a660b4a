package bvh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ReadFile loads a tree file from disk.
func ReadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	t, err := Read(f, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return t, nil
}

// Read scans size bytes of r as a segment stream and returns the tree it
// describes. It never returns a partially populated tree.
func Read(r io.ReaderAt, size int64) (*Tree, error) {
	var (
		tree     *treeSegment
		trees    int
		treeExt  []byte
		treeExts int
		nodes    []Node
		nodeExts [][]byte
		hdrBuf   [HeaderSize]byte
		off      int64
	)

	for off < size {
		if size-off < HeaderSize {
			return nil, fmt.Errorf("%w: truncated header at offset %d", ErrCorrupt, off)
		}

		if n, err := r.ReadAt(hdrBuf[:], off); n < HeaderSize {
			return nil, fmt.Errorf("%w: read header at offset %d: %v", ErrCorrupt, off, err)
		}

		var h segmentHeader
		if err := binary.Read(bytes.NewReader(hdrBuf[:]), binary.LittleEndian, &h); err != nil {
			return nil, fmt.Errorf("%w: decode header: %v", ErrCorrupt, err)
		}

		if !h.hasMagic() {
			return nil, fmt.Errorf("%w: invalid magic %q at offset %d", ErrCorrupt, h.Tag[:], off)
		}

		anchor := off + HeaderSize
		if h.Used > h.Allocated || int64(h.Used) > size-anchor {
			return nil, fmt.Errorf("%w: segment %s at offset %d exceeds file", ErrCorrupt, h.kind(), off)
		}

		payload := make([]byte, h.Used)
		if n, err := r.ReadAt(payload, anchor); n < len(payload) {
			return nil, fmt.Errorf("%w: read %s payload: %v", ErrCorrupt, h.kind(), err)
		}

		switch h.kind() {
		case KindFile:
			var seg fileSegment
			if err := decode(payload, &seg, h.kind()); err != nil {
				return nil, err
			}
		case KindTree:
			if trees++; trees > 1 {
				return nil, fmt.Errorf("%w: %d tree segments", ErrCorrupt, trees)
			}

			var seg treeSegment
			if err := decode(payload, &seg, h.kind()); err != nil {
				return nil, err
			}

			tree = &seg
		case KindTreeExt:
			if tree == nil || len(nodes) > 0 {
				return nil, fmt.Errorf("%w: %s must follow the tree segment and precede the nodes", ErrCorrupt, h.kind())
			}

			if len(payload) < extPrefixSize {
				return nil, fmt.Errorf("%w: short %s segment", ErrCorrupt, h.kind())
			}

			treeExt = payload[extPrefixSize:]
			treeExts++
		case KindNode:
			if tree == nil {
				return nil, fmt.Errorf("%w: node segment before tree segment", ErrCorrupt)
			}

			var seg nodeSegment
			if err := decode(payload, &seg, h.kind()); err != nil {
				return nil, err
			}

			if seg.NodeID != uint32(len(nodes)) {
				return nil, fmt.Errorf("%w: invalid node order: got %d, want %d", ErrCorrupt, seg.NodeID, len(nodes))
			}

			nodes = append(nodes, Node{
				Centroid:       seg.Centroid,
				Depth:          seg.Depth,
				ReductionError: seg.ReductionError,
				AvgRadius:      seg.AvgRadius,
				Visibility:     Visibility(seg.Visibility),
				Box:            Box{Min: seg.BoxMin, Max: seg.BoxMax},
			})
		case KindNodeExt:
			var prefix extPrefix
			if err := decode(payload, &prefix, h.kind()); err != nil {
				return nil, err
			}

			if prefix.NodeID != uint32(len(nodeExts)) || int(prefix.NodeID) >= len(nodes) {
				return nil, fmt.Errorf("%w: invalid node extension order: got %d, want %d", ErrCorrupt, prefix.NodeID, len(nodeExts))
			}

			nodeExts = append(nodeExts, payload[extPrefixSize:])
		default:
			// Unknown kinds from newer writers are skipped.
		}

		if h.Allocated > uint64(size-anchor) {
			return nil, fmt.Errorf("%w: %s padding at offset %d runs past end of file", ErrCorrupt, h.kind(), off)
		}

		off = anchor + int64(h.Allocated)
	}

	switch {
	case trees != 1:
		return nil, fmt.Errorf("%w: missing tree segment", ErrCorrupt)
	case treeExts > 1:
		return nil, fmt.Errorf("%w: %d tree extensions", ErrCorrupt, treeExts)
	case int(tree.NumNodes) != len(nodes):
		return nil, fmt.Errorf("%w: tree declares %d nodes, found %d", ErrCorrupt, tree.NumNodes, len(nodes))
	case len(nodeExts) > len(nodes):
		return nil, fmt.Errorf("%w: %d node extensions for %d nodes", ErrCorrupt, len(nodeExts), len(nodes))
	}

	return &Tree{
		Depth:          tree.Depth,
		FanFactor:      tree.FanFactor,
		SurfelsPerNode: tree.SurfelsPerNode,
		SurfelSize:     tree.SurfelSize,
		State:          State(tree.State),
		Translation:    tree.Translation,
		Nodes:          nodes,
		Extension:      treeExt,
		NodeExtensions: nodeExts,
	}, nil
}

func decode(payload []byte, v any, k Kind) error {
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%w: short %s segment: %v", ErrCorrupt, k, err)
	}

	return nil
}

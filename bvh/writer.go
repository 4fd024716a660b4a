package bvh

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer emits segments and tracks the running segment id and byte count.
type Writer struct {
	w       io.Writer
	buf     bytes.Buffer
	segment uint32
	n       int64
}

// NewWriter creates a segment writer on top of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// BytesWritten returns the number of bytes emitted so far.
func (sw *Writer) BytesWritten() int64 { return sw.n }

func (sw *Writer) nextID() uint32 {
	id := sw.segment
	sw.segment++

	return id
}

// WriteSegment writes one segment of kind k. Each value in parts is encoded
// in order with encoding/binary, except []byte which is copied verbatim.
func (sw *Writer) WriteSegment(k Kind, parts ...any) error {
	sw.buf.Reset()

	for _, p := range parts {
		if raw, ok := p.([]byte); ok {
			sw.buf.Write(raw)
			continue
		}

		if err := binary.Write(&sw.buf, binary.LittleEndian, p); err != nil {
			return fmt.Errorf("bvh: encode %s: %w", k, err)
		}
	}

	h := newHeader(k, uint64(sw.buf.Len()))
	if err := binary.Write(sw.w, binary.LittleEndian, h); err != nil {
		return err
	}

	pad := int(h.Allocated - h.Used)
	sw.buf.Write(make([]byte, pad))

	if _, err := sw.w.Write(sw.buf.Bytes()); err != nil {
		return err
	}

	sw.n += HeaderSize + int64(h.Allocated)

	return nil
}

// Write serializes t as FILE, TREE, optional TEXT, then NODE segments for
// ids 0..N-1 each followed by its NEXT segment when present.
func Write(w io.Writer, t *Tree) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	sw := NewWriter(w)

	if err := sw.WriteSegment(KindFile, fileSegment{Major: VersionMajor, Minor: VersionMinor}); err != nil {
		return sw.n, err
	}

	tree := treeSegment{
		SegmentID:      sw.nextID(),
		Depth:          t.Depth,
		NumNodes:       t.NumNodes(),
		FanFactor:      t.FanFactor,
		SurfelsPerNode: t.SurfelsPerNode,
		SurfelSize:     t.SurfelSize,
		State:          uint32(StateSerialized),
		Translation:    t.Translation,
	}
	if err := sw.WriteSegment(KindTree, tree); err != nil {
		return sw.n, err
	}

	if t.Extension != nil {
		if err := sw.WriteSegment(KindTreeExt, extPrefix{SegmentID: sw.nextID()}, t.Extension); err != nil {
			return sw.n, err
		}
	}

	for i, nd := range t.Nodes {
		seg := nodeSegment{
			SegmentID:      sw.nextID(),
			NodeID:         uint32(i),
			Centroid:       nd.Centroid,
			Depth:          nd.Depth,
			ReductionError: nd.ReductionError,
			AvgRadius:      nd.AvgRadius,
			Visibility:     uint32(nd.Visibility),
			BoxMin:         nd.Box.Min,
			BoxMax:         nd.Box.Max,
		}
		if err := sw.WriteSegment(KindNode, seg); err != nil {
			return sw.n, err
		}

		if i < len(t.NodeExtensions) {
			prefix := extPrefix{SegmentID: sw.nextID(), NodeID: uint32(i)}
			if err := sw.WriteSegment(KindNodeExt, prefix, t.NodeExtensions[i]); err != nil {
				return sw.n, err
			}
		}
	}

	return sw.n, nil
}

// WriteFile writes t to path atomically through a temporary file.
func WriteFile(path string, t *Tree) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	bw := bufio.NewWriter(tmp)
	if _, err := Write(bw, t); err != nil {
		tmp.Close()
		return err
	}

	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

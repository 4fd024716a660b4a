package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Visitor receives the decoded body. Values of every ScalarType are
// reported as float64, which holds all of them exactly.
type Visitor interface {
	BeginElement(e *Element, index int) error
	Scalar(e *Element, p *Property, v float64) error
	List(e *Element, p *Property, vs []float64) error
	EndElement(e *Element, index int) error
}

// Decode reads a header and its body from r, reporting values to v.
func Decode(r io.Reader, v Visitor) (*Header, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}

	if err := DecodeBody(br, h, v); err != nil {
		return h, err
	}

	return h, nil
}

// DecodeBody reads the body described by h.
func DecodeBody(r *bufio.Reader, h *Header, v Visitor) error {
	var src valueReader

	switch h.Format {
	case BinaryLittleEndian:
		src = &binaryReader{r: r, order: binary.LittleEndian}
	case BinaryBigEndian:
		src = &binaryReader{r: r, order: binary.BigEndian}
	default:
		src = &asciiReader{r: r}
	}

	var list []float64

	for _, e := range h.Elements {
		for i := range e.Count {
			if err := v.BeginElement(e, i); err != nil {
				return err
			}

			for j := range e.Properties {
				p := &e.Properties[j]

				if !p.Kind.List {
					x, err := src.read(p.Kind.Elem)
					if err != nil {
						return bodyError(e, i, p, err)
					}

					if err := v.Scalar(e, p, x); err != nil {
						return err
					}

					continue
				}

				n, err := src.read(p.Kind.Count)
				if err != nil {
					return bodyError(e, i, p, err)
				}

				list = list[:0]
				for range int(n) {
					x, err := src.read(p.Kind.Elem)
					if err != nil {
						return bodyError(e, i, p, err)
					}

					list = append(list, x)
				}

				if err := v.List(e, p, list); err != nil {
					return err
				}
			}

			if err := v.EndElement(e, i); err != nil {
				return err
			}
		}
	}

	return nil
}

func bodyError(e *Element, i int, p *Property, err error) error {
	return fmt.Errorf("%w: %s[%d].%s: %w", ErrBody, e.Name, i, p.Name, err)
}

type valueReader interface {
	read(t ScalarType) (float64, error)
}

type binaryReader struct {
	r     *bufio.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (b *binaryReader) read(t ScalarType) (float64, error) {
	p := b.buf[:t.Size()]
	if _, err := io.ReadFull(b.r, p); err != nil {
		return 0, err
	}

	switch t {
	case Int8:
		return float64(int8(p[0])), nil
	case Uint8:
		return float64(p[0]), nil
	case Int16:
		return float64(int16(b.order.Uint16(p))), nil
	case Uint16:
		return float64(b.order.Uint16(p)), nil
	case Int32:
		return float64(int32(b.order.Uint32(p))), nil
	case Uint32:
		return float64(b.order.Uint32(p)), nil
	case Float32:
		return float64(math.Float32frombits(b.order.Uint32(p))), nil
	case Float64:
		return math.Float64frombits(b.order.Uint64(p)), nil
	default:
		return 0, fmt.Errorf("invalid type %d", t)
	}
}

// asciiReader tokenizes whitespace separated values. Records are one per
// line but values may wrap, so line breaks are not enforced.
type asciiReader struct {
	r   *bufio.Reader
	tok []byte
}

func (a *asciiReader) next() (string, error) {
	a.tok = a.tok[:0]

	for {
		c, err := a.r.ReadByte()
		if err != nil {
			if err == io.EOF && len(a.tok) > 0 {
				return string(a.tok), nil
			}

			if err == io.EOF {
				return "", io.ErrUnexpectedEOF
			}

			return "", err
		}

		switch c {
		case ' ', '\t', '\n', '\r':
			if len(a.tok) > 0 {
				return string(a.tok), nil
			}
		default:
			a.tok = append(a.tok, c)
		}
	}
}

func (a *asciiReader) read(t ScalarType) (float64, error) {
	s, err := a.next()
	if err != nil {
		return 0, err
	}

	switch t {
	case Float32, Float64:
		return strconv.ParseFloat(s, 64)
	case Int8, Int16, Int32:
		n, err := strconv.ParseInt(s, 10, t.Size()*8)
		return float64(n), err
	default:
		n, err := strconv.ParseUint(s, 10, t.Size()*8)
		return float64(n), err
	}
}

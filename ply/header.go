package ply

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrBadMagic is returned when a stream does not start with "ply".
	ErrBadMagic = errors.New("ply: missing magic")
	// ErrHeader is returned for malformed header lines.
	ErrHeader = errors.New("ply: malformed header")
	// ErrBody is returned when the body does not match the header.
	ErrBody = errors.New("ply: malformed body")
)

// Format is the body encoding.
type Format uint8

const (
	ASCII Format = iota
	BinaryLittleEndian
	BinaryBigEndian
)

func (f Format) String() string {
	switch f {
	case BinaryLittleEndian:
		return "binary_little_endian"
	case BinaryBigEndian:
		return "binary_big_endian"
	default:
		return "ascii"
	}
}

// ScalarType is the storage type of a value.
type ScalarType uint8

const (
	Int8 ScalarType = iota + 1
	Int16
	Int32
	Uint8
	Uint16
	Uint32
	Float32
	Float64
)

var scalarNames = map[string]ScalarType{
	"char": Int8, "int8": Int8,
	"short": Int16, "int16": Int16,
	"int": Int32, "int32": Int32,
	"uchar": Uint8, "uint8": Uint8,
	"ushort": Uint16, "uint16": Uint16,
	"uint": Uint32, "uint32": Uint32,
	"float": Float32, "float32": Float32,
	"double": Float64, "float64": Float64,
}

func (t ScalarType) String() string {
	switch t {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "invalid"
	}
}

// Size returns the encoded size in bytes.
func (t ScalarType) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// PropertyKind describes how a property is stored.
type PropertyKind struct {
	// List is set for variable length properties.
	List bool
	// Elem is the type of the value or of every list entry.
	Elem ScalarType
	// Count is the type of the list length prefix. Unused for scalars.
	Count ScalarType
}

func (k PropertyKind) String() string {
	if k.List {
		return fmt.Sprintf("list %s %s", k.Count, k.Elem)
	}

	return k.Elem.String()
}

// Property is a named field of an element.
type Property struct {
	Name string
	Kind PropertyKind
}

// Element is a named record type repeated Count times in the body.
type Element struct {
	Name       string
	Count      int
	Properties []Property
}

// Property returns the index of the named property, or -1.
func (e *Element) Property(name string) int {
	for i, p := range e.Properties {
		if p.Name == name {
			return i
		}
	}

	return -1
}

// Header is a parsed PLY header.
type Header struct {
	Format   Format
	Version  string
	Comments []string
	ObjInfo  []string
	Elements []*Element
}

// Element returns the named element or nil.
func (h *Header) Element(name string) *Element {
	for _, e := range h.Elements {
		if e.Name == name {
			return e
		}
	}

	return nil
}

// ReadHeader parses the header up to and including "end_header".
func ReadHeader(r *bufio.Reader) (*Header, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}

	if line != "ply" {
		return nil, ErrBadMagic
	}

	h := &Header{}
	sawFormat := false

	for lineNo := 2; ; lineNo++ {
		line, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrHeader, lineNo, err)
		}

		keyword, rest, _ := strings.Cut(line, " ")
		fields := strings.Fields(rest)

		switch keyword {
		case "format":
			if len(fields) != 2 {
				return nil, fmt.Errorf("%w: line %d: format", ErrHeader, lineNo)
			}

			switch fields[0] {
			case "ascii":
				h.Format = ASCII
			case "binary_little_endian":
				h.Format = BinaryLittleEndian
			case "binary_big_endian":
				h.Format = BinaryBigEndian
			default:
				return nil, fmt.Errorf("%w: line %d: unknown format %q", ErrHeader, lineNo, fields[0])
			}

			h.Version = fields[1]
			sawFormat = true
		case "comment":
			h.Comments = append(h.Comments, rest)
		case "obj_info":
			h.ObjInfo = append(h.ObjInfo, rest)
		case "element":
			if len(fields) != 2 {
				return nil, fmt.Errorf("%w: line %d: element", ErrHeader, lineNo)
			}

			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: line %d: element count %q", ErrHeader, lineNo, fields[1])
			}

			h.Elements = append(h.Elements, &Element{Name: fields[0], Count: n})
		case "property":
			if len(h.Elements) == 0 {
				return nil, fmt.Errorf("%w: line %d: property outside element", ErrHeader, lineNo)
			}

			p, err := parseProperty(fields)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrHeader, lineNo, err)
			}

			e := h.Elements[len(h.Elements)-1]
			e.Properties = append(e.Properties, p)
		case "end_header":
			if !sawFormat {
				return nil, fmt.Errorf("%w: no format line", ErrHeader)
			}

			return h, nil
		default:
			return nil, fmt.Errorf("%w: line %d: unknown keyword %q", ErrHeader, lineNo, keyword)
		}
	}
}

func parseProperty(fields []string) (Property, error) {
	if len(fields) == 2 {
		t, ok := scalarNames[fields[0]]
		if !ok {
			return Property{}, fmt.Errorf("unknown type %q", fields[0])
		}

		return Property{Name: fields[1], Kind: PropertyKind{Elem: t}}, nil
	}

	if len(fields) == 4 && fields[0] == "list" {
		count, ok := scalarNames[fields[1]]
		if !ok || (count != Uint8 && count != Uint16 && count != Uint32) {
			return Property{}, fmt.Errorf("invalid list size type %q", fields[1])
		}

		elem, ok := scalarNames[fields[2]]
		if !ok {
			return Property{}, fmt.Errorf("unknown type %q", fields[2])
		}

		return Property{Name: fields[3], Kind: PropertyKind{List: true, Elem: elem, Count: count}}, nil
	}

	return Property{}, fmt.Errorf("property %q", strings.Join(fields, " "))
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

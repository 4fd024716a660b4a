package ply

// Point is a vertex with optional color and normal.
type Point struct {
	X, Y, Z    float32
	R, G, B    uint8
	NX, NY, NZ float32
	Radius     float32
}

// Points is a Visitor that collects the "vertex" element. Unknown vertex
// properties and other elements are ignored.
type Points struct {
	Points []Point
	Faces  int

	cur Point
}

var _ Visitor = (*Points)(nil)

func (c *Points) BeginElement(e *Element, _ int) error {
	if e.Name == "vertex" {
		c.cur = Point{}
	}

	return nil
}

func (c *Points) Scalar(e *Element, p *Property, v float64) error {
	if e.Name != "vertex" {
		return nil
	}

	switch p.Name {
	case "x":
		c.cur.X = float32(v)
	case "y":
		c.cur.Y = float32(v)
	case "z":
		c.cur.Z = float32(v)
	case "red", "r":
		c.cur.R = uint8(v)
	case "green", "g":
		c.cur.G = uint8(v)
	case "blue", "b":
		c.cur.B = uint8(v)
	case "nx":
		c.cur.NX = float32(v)
	case "ny":
		c.cur.NY = float32(v)
	case "nz":
		c.cur.NZ = float32(v)
	case "radius":
		c.cur.Radius = float32(v)
	}

	return nil
}

func (c *Points) List(e *Element, _ *Property, _ []float64) error {
	if e.Name == "face" {
		c.Faces++
	}

	return nil
}

func (c *Points) EndElement(e *Element, _ int) error {
	if e.Name == "vertex" {
		c.Points = append(c.Points, c.cur)
	}

	return nil
}

// Bounds returns the axis aligned bounds of the collected points.
func (c *Points) Bounds() (lo, hi [3]float32) {
	for i, p := range c.Points {
		v := [3]float32{p.X, p.Y, p.Z}
		if i == 0 {
			lo, hi = v, v
			continue
		}

		for k := range 3 {
			lo[k] = min(lo[k], v[k])
			hi[k] = max(hi[k], v[k])
		}
	}

	return lo, hi
}

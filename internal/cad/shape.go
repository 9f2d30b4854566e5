package cad

import "math"

// Shape is a node of a constructive solid geometry tree.
type Shape interface {
	// Bounds returns a box enclosing the shape.
	Bounds() Box3
	// Contains reports whether p lies inside or on the shape.
	Contains(p Vec3) bool
	translate(d Vec3) Shape
}

// Block is an axis-aligned rectangular solid.
type Block struct {
	Min, Max Vec3
}

func (s Block) Bounds() Box3 { return Box3{s.Min, s.Max} }
func (s Block) Contains(p Vec3) bool { return Box3{s.Min, s.Max}.contains(p) }
func (s Block) translate(d Vec3) Shape { return Block{s.Min.Add(d), s.Max.Add(d)} }

// Cylinder is a right circular cylinder standing on Base along the unit Axis.
type Cylinder struct {
	Base   Vec3
	Axis   Vec3
	Height float64
	Radius float64
}

func (s Cylinder) Bounds() Box3 {
	top := s.Base.Add(s.Axis.Scale(s.Height))
	// Per-axis radial extent of a disc with normal Axis.
	ext := Vec3{
		s.Radius * math.Sqrt(math.Max(0, 1-s.Axis.X*s.Axis.X)),
		s.Radius * math.Sqrt(math.Max(0, 1-s.Axis.Y*s.Axis.Y)),
		s.Radius * math.Sqrt(math.Max(0, 1-s.Axis.Z*s.Axis.Z)),
	}
	lo := Box3{s.Base.Sub(ext), s.Base.Add(ext)}
	hi := Box3{top.Sub(ext), top.Add(ext)}
	return lo.Union(hi)
}

func (s Cylinder) Contains(p Vec3) bool {
	rel := p.Sub(s.Base)
	h := rel.Dot(s.Axis)
	if h < -eps || h > s.Height+eps {
		return false
	}
	radial := rel.Sub(s.Axis.Scale(h))
	return radial.Len() <= s.Radius+eps
}

func (s Cylinder) translate(d Vec3) Shape {
	s.Base = s.Base.Add(d)
	return s
}

// Sphere is a ball around Center.
type Sphere struct {
	Center Vec3
	Radius float64
}

func (s Sphere) Bounds() Box3 {
	r := Vec3{s.Radius, s.Radius, s.Radius}
	return Box3{s.Center.Sub(r), s.Center.Add(r)}
}
func (s Sphere) Contains(p Vec3) bool { return p.Sub(s.Center).Len() <= s.Radius+eps }
func (s Sphere) translate(d Vec3) Shape { return Sphere{s.Center.Add(d), s.Radius} }

// Torus is a ring swept around Axis through Center.
type Torus struct {
	Center Vec3
	Axis   Vec3
	Major  float64
	Minor  float64
}

func (s Torus) Bounds() Box3 {
	r := s.Major + s.Minor
	e := Vec3{r, r, r}
	return Box3{s.Center.Sub(e), s.Center.Add(e)}
}

func (s Torus) Contains(p Vec3) bool {
	rel := p.Sub(s.Center)
	h := rel.Dot(s.Axis)
	radial := rel.Sub(s.Axis.Scale(h)).Len() - s.Major
	return math.Hypot(radial, h) <= s.Minor+eps
}

func (s Torus) translate(d Vec3) Shape {
	s.Center = s.Center.Add(d)
	return s
}

// Op is a boolean operation.
type Op int

const (
	OpUnion Op = iota
	OpDifference
	OpIntersection
)

func (o Op) String() string {
	switch o {
	case OpUnion:
		return "union"
	case OpDifference:
		return "difference"
	case OpIntersection:
		return "intersection"
	default:
		return "unknown"
	}
}

// Boolean combines two shapes.
type Boolean struct {
	Op   Op
	A, B Shape
}

func (s Boolean) Bounds() Box3 {
	switch s.Op {
	case OpDifference:
		return s.A.Bounds()
	case OpIntersection:
		a, b := s.A.Bounds(), s.B.Bounds()
		return Box3{
			Min: Vec3{math.Max(a.Min.X, b.Min.X), math.Max(a.Min.Y, b.Min.Y), math.Max(a.Min.Z, b.Min.Z)},
			Max: Vec3{math.Min(a.Max.X, b.Max.X), math.Min(a.Max.Y, b.Max.Y), math.Min(a.Max.Z, b.Max.Z)},
		}
	default:
		return s.A.Bounds().Union(s.B.Bounds())
	}
}

func (s Boolean) Contains(p Vec3) bool {
	switch s.Op {
	case OpDifference:
		return s.A.Contains(p) && !s.B.Contains(p)
	case OpIntersection:
		return s.A.Contains(p) && s.B.Contains(p)
	default:
		return s.A.Contains(p) || s.B.Contains(p)
	}
}

func (s Boolean) translate(d Vec3) Shape {
	return Boolean{Op: s.Op, A: s.A.translate(d), B: s.B.translate(d)}
}

const eps = 1e-9

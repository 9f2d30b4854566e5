// Package cad is a small constructive solid geometry kernel with a
// builder-style workplane API and STEP/STL export.
package cad

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoSolid is reported when an operation needs a solid and the workplane
// has none.
var ErrNoSolid = eris.New("cad: workplane has no solid")

// Plane is an orthonormal sketch frame. Normal is XDir x YDir.
type Plane struct {
	Name   string
	XDir   Vec3
	YDir   Vec3
	Normal Vec3
}

var planes = map[string]Plane{
	"XY": {Name: "XY", XDir: Vec3{1, 0, 0}, YDir: Vec3{0, 1, 0}, Normal: Vec3{0, 0, 1}},
	"YZ": {Name: "YZ", XDir: Vec3{0, 1, 0}, YDir: Vec3{0, 0, 1}, Normal: Vec3{1, 0, 0}},
	"XZ": {Name: "XZ", XDir: Vec3{1, 0, 0}, YDir: Vec3{0, 0, 1}, Normal: Vec3{0, -1, 0}},
}

type profileKind int

const (
	profileCircle profileKind = iota
	profileRect
)

// profile is a pending 2D wire in workplane-local coordinates.
type profile struct {
	kind profileKind
	u, v float64
	a, b float64 // radius, or width and height
}

// Workplane builds solids by chaining operations. Every operation returns a
// new workplane; the receiver is never modified. The first error sticks and
// later operations become no-ops; it is reported by Err and by Export.
type Workplane struct {
	plane   Plane
	origin  Vec3
	cursor  [2]float64
	pending []profile
	solid   Shape
	err     error
}

// NewWorkplane starts a workplane on one of the named planes XY, YZ or XZ.
func NewWorkplane(plane string) *Workplane {
	p, ok := planes[strings.ToUpper(strings.TrimSpace(plane))]
	if !ok {
		return &Workplane{plane: planes["XY"], err: eris.Errorf("cad: unknown plane %q (use XY, YZ or XZ)", plane)}
	}
	return &Workplane{plane: p}
}

func (w *Workplane) clone() *Workplane {
	c := *w
	c.pending = append([]profile(nil), w.pending...)
	return &c
}

func (w *Workplane) fail(err error) *Workplane {
	c := w.clone()
	c.err = err
	return c
}

// Err returns the first error recorded while building.
func (w *Workplane) Err() error { return w.err }

// Shape returns the solid built so far, or nil.
func (w *Workplane) Shape() Shape { return w.solid }

// HasSolid reports whether the workplane carries a solid.
func (w *Workplane) HasSolid() bool { return w.solid != nil }

// BoundingBox returns the bounds of the solid, or an empty box.
func (w *Workplane) BoundingBox() Box3 {
	if w.solid == nil {
		return Box3{}
	}
	return w.solid.Bounds()
}

// Contains reports whether p lies inside the solid.
func (w *Workplane) Contains(x, y, z float64) bool {
	return w.solid != nil && w.solid.Contains(Vec3{x, y, z})
}

// local maps workplane coordinates to model space.
func (w *Workplane) local(u, v, n float64) Vec3 {
	return w.origin.
		Add(w.plane.XDir.Scale(u)).
		Add(w.plane.YDir.Scale(v)).
		Add(w.plane.Normal.Scale(n))
}

func (w *Workplane) combine(s Shape) *Workplane {
	c := w.clone()
	if c.solid == nil {
		c.solid = s
	} else {
		c.solid = Boolean{Op: OpUnion, A: c.solid, B: s}
	}
	return c
}

func positive(op string, vals ...float64) error {
	for _, v := range vals {
		if !(v > 0) || math.IsInf(v, 0) {
			return eris.Errorf("cad: %s dimensions must be positive, got %v", op, vals)
		}
	}
	return nil
}

// Box adds a box centred on the workplane origin. Length runs along the
// plane X direction, width along Y and height along the normal.
func (w *Workplane) Box(length, width, height float64) *Workplane {
	if w.err != nil {
		return w
	}
	if err := positive("box", length, width, height); err != nil {
		return w.fail(err)
	}
	size := w.plane.XDir.Abs().Scale(length).
		Add(w.plane.YDir.Abs().Scale(width)).
		Add(w.plane.Normal.Abs().Scale(height))
	c := w.local(w.cursor[0], w.cursor[1], 0)
	half := size.Scale(0.5)
	return w.combine(Block{Min: c.Sub(half), Max: c.Add(half)})
}

// Cylinder adds a cylinder centred on the workplane origin with its axis
// along the plane normal.
func (w *Workplane) Cylinder(height, radius float64) *Workplane {
	if w.err != nil {
		return w
	}
	if err := positive("cylinder", height, radius); err != nil {
		return w.fail(err)
	}
	base := w.local(w.cursor[0], w.cursor[1], -height/2)
	return w.combine(Cylinder{Base: base, Axis: w.plane.Normal, Height: height, Radius: radius})
}

// Sphere adds a sphere centred on the workplane origin.
func (w *Workplane) Sphere(radius float64) *Workplane {
	if w.err != nil {
		return w
	}
	if err := positive("sphere", radius); err != nil {
		return w.fail(err)
	}
	return w.combine(Sphere{Center: w.local(w.cursor[0], w.cursor[1], 0), Radius: radius})
}

// Center moves the workplane origin by (x, y) in plane coordinates.
func (w *Workplane) Center(x, y float64) *Workplane {
	if w.err != nil {
		return w
	}
	c := w.clone()
	c.origin = w.local(x, y, 0)
	c.cursor = [2]float64{}
	return c
}

// MoveTo places the next sketch profile at (x, y) without moving the origin.
func (w *Workplane) MoveTo(x, y float64) *Workplane {
	if w.err != nil {
		return w
	}
	c := w.clone()
	c.cursor = [2]float64{x, y}
	return c
}

// Circle sketches a circle at the cursor.
func (w *Workplane) Circle(radius float64) *Workplane {
	if w.err != nil {
		return w
	}
	if err := positive("circle", radius); err != nil {
		return w.fail(err)
	}
	c := w.clone()
	c.pending = append(c.pending, profile{kind: profileCircle, u: w.cursor[0], v: w.cursor[1], a: radius})
	return c
}

// Rect sketches a rectangle centred on the cursor.
func (w *Workplane) Rect(width, height float64) *Workplane {
	if w.err != nil {
		return w
	}
	if err := positive("rect", width, height); err != nil {
		return w.fail(err)
	}
	c := w.clone()
	c.pending = append(c.pending, profile{kind: profileRect, u: w.cursor[0], v: w.cursor[1], a: width, b: height})
	return c
}

func (w *Workplane) prism(p profile, distance float64) Shape {
	n := w.plane.Normal
	start := 0.0
	if distance < 0 {
		start, distance = distance, -distance
	}
	switch p.kind {
	case profileCircle:
		return Cylinder{Base: w.local(p.u, p.v, start), Axis: n, Height: distance, Radius: p.a}
	default:
		a := w.local(p.u-p.a/2, p.v-p.b/2, start)
		b := w.local(p.u+p.a/2, p.v+p.b/2, start+distance)
		return Block{
			Min: Vec3{math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Min(a.Z, b.Z)},
			Max: Vec3{math.Max(a.X, b.X), math.Max(a.Y, b.Y), math.Max(a.Z, b.Z)},
		}
	}
}

// Extrude turns the pending sketch into a solid along the plane normal. The
// first profile is the outer boundary; every later profile is cut from it.
func (w *Workplane) Extrude(distance float64) *Workplane {
	if w.err != nil {
		return w
	}
	if len(w.pending) == 0 {
		return w.fail(eris.New("cad: extrude needs a sketch (call Circle or Rect first)"))
	}
	if distance == 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return w.fail(eris.Errorf("cad: extrude distance must be non-zero, got %v", distance))
	}
	var s Shape = w.prism(w.pending[0], distance)
	for _, p := range w.pending[1:] {
		s = Boolean{Op: OpDifference, A: s, B: w.prism(p, distance)}
	}
	c := w.combine(s)
	c.pending = nil
	return c
}

// Revolve sweeps the pending sketch a full turn around the plane Y axis
// through the origin. Rectangles become tubes or cylinders; circles become
// spheres when centred on the axis and tori when clear of it.
func (w *Workplane) Revolve() *Workplane {
	if w.err != nil {
		return w
	}
	if len(w.pending) == 0 {
		return w.fail(eris.New("cad: revolve needs a sketch (call Circle or Rect first)"))
	}
	axis := w.plane.YDir
	var out Shape
	for _, p := range w.pending {
		s, err := w.revolveProfile(p, axis)
		if err != nil {
			return w.fail(err)
		}
		if out == nil {
			out = s
		} else {
			out = Boolean{Op: OpDifference, A: out, B: s}
		}
	}
	c := w.combine(out)
	c.pending = nil
	return c
}

func (w *Workplane) revolveProfile(p profile, axis Vec3) (Shape, error) {
	switch p.kind {
	case profileCircle:
		du := math.Abs(p.u)
		switch {
		case du < eps:
			return Sphere{Center: w.local(0, p.v, 0), Radius: p.a}, nil
		case du >= p.a:
			return Torus{Center: w.local(0, p.v, 0), Axis: axis, Major: du, Minor: p.a}, nil
		default:
			return nil, eris.Errorf("cad: revolve profile circle at %.3g with radius %.3g crosses the axis", p.u, p.a)
		}
	default:
		lo, hi := p.u-p.a/2, p.u+p.a/2
		base := w.local(0, p.v-p.b/2, 0)
		if lo < 0 && hi > 0 {
			r := math.Max(-lo, hi)
			return Cylinder{Base: base, Axis: axis, Height: p.b, Radius: r}, nil
		}
		inner, outer := math.Min(math.Abs(lo), math.Abs(hi)), math.Max(math.Abs(lo), math.Abs(hi))
		tube := Cylinder{Base: base, Axis: axis, Height: p.b, Radius: outer}
		if inner < eps {
			return tube, nil
		}
		return Boolean{Op: OpDifference, A: tube, B: Cylinder{Base: base, Axis: axis, Height: p.b, Radius: inner}}, nil
	}
}

func (w *Workplane) boolean(op Op, other *Workplane) *Workplane {
	if w.err != nil {
		return w
	}
	if other == nil {
		return w.fail(eris.Errorf("cad: %s with nil workplane", op))
	}
	if other.err != nil {
		return w.fail(other.err)
	}
	if w.solid == nil || other.solid == nil {
		return w.fail(eris.Wrapf(ErrNoSolid, "cad: %s", op))
	}
	c := w.clone()
	c.solid = Boolean{Op: op, A: w.solid, B: other.solid}
	return c
}

// Union fuses other into the solid.
func (w *Workplane) Union(other *Workplane) *Workplane { return w.boolean(OpUnion, other) }

// Cut removes other from the solid.
func (w *Workplane) Cut(other *Workplane) *Workplane { return w.boolean(OpDifference, other) }

// Intersect keeps the volume common to both solids.
func (w *Workplane) Intersect(other *Workplane) *Workplane { return w.boolean(OpIntersection, other) }

// Translate moves the solid in model space.
func (w *Workplane) Translate(x, y, z float64) *Workplane {
	if w.err != nil {
		return w
	}
	if w.solid == nil {
		return w.fail(eris.Wrap(ErrNoSolid, "cad: translate"))
	}
	c := w.clone()
	c.solid = w.solid.translate(Vec3{x, y, z})
	return c
}

// Hole drills a through hole of the given diameter at the cursor along the
// plane normal.
func (w *Workplane) Hole(diameter float64) *Workplane {
	if w.err != nil {
		return w
	}
	if err := positive("hole", diameter); err != nil {
		return w.fail(err)
	}
	if w.solid == nil {
		return w.fail(eris.Wrap(ErrNoSolid, "cad: hole"))
	}
	c := w.clone()
	c.solid = Boolean{Op: OpDifference, A: w.solid, B: w.drill(w.cursor[0], w.cursor[1], diameter/2)}
	return c
}

// PolarHoles drills count through holes evenly spaced on a circle of
// diameter pcd around the cursor.
func (w *Workplane) PolarHoles(pcd, diameter float64, count int) *Workplane {
	if w.err != nil {
		return w
	}
	if err := positive("polar hole", pcd, diameter); err != nil {
		return w.fail(err)
	}
	if count <= 0 {
		return w.fail(eris.Errorf("cad: polar hole count must be positive, got %d", count))
	}
	if w.solid == nil {
		return w.fail(eris.Wrap(ErrNoSolid, "cad: polar holes"))
	}
	c := w.clone()
	for i := 0; i < count; i++ {
		a := 2 * math.Pi * float64(i) / float64(count)
		u := w.cursor[0] + pcd/2*math.Cos(a)
		v := w.cursor[1] + pcd/2*math.Sin(a)
		c.solid = Boolean{Op: OpDifference, A: c.solid, B: w.drill(u, v, diameter/2)}
	}
	return c
}

// drill builds a cylinder through the full extent of the solid.
func (w *Workplane) drill(u, v, radius float64) Shape {
	size := w.solid.Bounds().Size().Len()
	reach := 2*size + w.origin.Sub(w.solid.Bounds().Center()).Len()
	return Cylinder{Base: w.local(u, v, -reach), Axis: w.plane.Normal, Height: 2 * reach, Radius: radius}
}

package cad

import (
	"bytes"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

const (
	meshSegments = 48
	meshRings    = 24
)

type triangle [3]Vec3

func (t triangle) normal() Vec3 {
	return t[1].Sub(t[0]).Cross(t[2].Sub(t[0])).Norm()
}

// tessellate approximates sh with triangles. Primitives are meshed
// directly; boolean trees go through the voxel mesher.
func tessellate(sh Shape) ([]triangle, error) {
	switch v := sh.(type) {
	case Block:
		return meshBlock(v), nil
	case Cylinder:
		return meshCylinder(v), nil
	case Sphere:
		return meshSphere(v), nil
	case Torus:
		return meshTorus(v), nil
	case Boolean:
		return meshVoxels(v)
	default:
		return nil, eris.Errorf("cad: cannot mesh %T", sh)
	}
}

func quad(a, b, c, d Vec3) []triangle {
	return []triangle{{a, b, c}, {a, c, d}}
}

func meshBlock(b Block) []triangle {
	lo, hi := b.Min, b.Max
	p := func(x, y, z float64) Vec3 { return Vec3{x, y, z} }
	var out []triangle
	out = append(out, quad(p(lo.X, lo.Y, lo.Z), p(lo.X, hi.Y, lo.Z), p(hi.X, hi.Y, lo.Z), p(hi.X, lo.Y, lo.Z))...) // bottom
	out = append(out, quad(p(lo.X, lo.Y, hi.Z), p(hi.X, lo.Y, hi.Z), p(hi.X, hi.Y, hi.Z), p(lo.X, hi.Y, hi.Z))...) // top
	out = append(out, quad(p(lo.X, lo.Y, lo.Z), p(hi.X, lo.Y, lo.Z), p(hi.X, lo.Y, hi.Z), p(lo.X, lo.Y, hi.Z))...) // front
	out = append(out, quad(p(lo.X, hi.Y, lo.Z), p(lo.X, hi.Y, hi.Z), p(hi.X, hi.Y, hi.Z), p(hi.X, hi.Y, lo.Z))...) // back
	out = append(out, quad(p(lo.X, lo.Y, lo.Z), p(lo.X, lo.Y, hi.Z), p(lo.X, hi.Y, hi.Z), p(lo.X, hi.Y, lo.Z))...) // left
	out = append(out, quad(p(hi.X, lo.Y, lo.Z), p(hi.X, hi.Y, lo.Z), p(hi.X, hi.Y, hi.Z), p(hi.X, lo.Y, hi.Z))...) // right
	return out
}

func meshCylinder(c Cylinder) []triangle {
	a, b := basis(c.Axis)
	top := c.Base.Add(c.Axis.Scale(c.Height))
	rim := func(center Vec3, i int) Vec3 {
		t := 2 * math.Pi * float64(i) / meshSegments
		return center.Add(a.Scale(c.Radius * math.Cos(t))).Add(b.Scale(c.Radius * math.Sin(t)))
	}
	out := make([]triangle, 0, 4*meshSegments)
	for i := 0; i < meshSegments; i++ {
		b0, b1 := rim(c.Base, i), rim(c.Base, i+1)
		t0, t1 := rim(top, i), rim(top, i+1)
		out = append(out, quad(b0, b1, t1, t0)...)
		out = append(out, triangle{c.Base, b1, b0}, triangle{top, t0, t1})
	}
	return out
}

func meshSphere(s Sphere) []triangle {
	at := func(ring, seg int) Vec3 {
		phi := math.Pi * float64(ring) / meshRings
		theta := 2 * math.Pi * float64(seg) / meshSegments
		return s.Center.Add(Vec3{
			s.Radius * math.Sin(phi) * math.Cos(theta),
			s.Radius * math.Sin(phi) * math.Sin(theta),
			s.Radius * math.Cos(phi),
		})
	}
	out := make([]triangle, 0, 2*meshRings*meshSegments)
	for r := 0; r < meshRings; r++ {
		for i := 0; i < meshSegments; i++ {
			p00, p01 := at(r, i), at(r, i+1)
			p10, p11 := at(r+1, i), at(r+1, i+1)
			if r > 0 {
				out = append(out, triangle{p00, p10, p01})
			}
			if r < meshRings-1 {
				out = append(out, triangle{p01, p10, p11})
			}
		}
	}
	return out
}

func meshTorus(t Torus) []triangle {
	a, b := basis(t.Axis)
	at := func(i, j int) Vec3 {
		u := 2 * math.Pi * float64(i) / meshSegments
		v := 2 * math.Pi * float64(j) / meshRings
		radial := a.Scale(math.Cos(u)).Add(b.Scale(math.Sin(u)))
		r := t.Major + t.Minor*math.Cos(v)
		return t.Center.Add(radial.Scale(r)).Add(t.Axis.Scale(t.Minor * math.Sin(v)))
	}
	out := make([]triangle, 0, 2*meshRings*meshSegments)
	for i := 0; i < meshSegments; i++ {
		for j := 0; j < meshRings; j++ {
			out = append(out, quad(at(i, j), at(i+1, j), at(i+1, j+1), at(i, j+1))...)
		}
	}
	return out
}

func encodeSTL(sh Shape) ([]byte, error) {
	tris, err := tessellate(sh)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("solid genx3d\n")
	for _, t := range tris {
		n := t.normal()
		fmt.Fprintf(&buf, "  facet normal %g %g %g\n    outer loop\n", n.X, n.Y, n.Z)
		for _, v := range t {
			fmt.Fprintf(&buf, "      vertex %g %g %g\n", v.X, v.Y, v.Z)
		}
		buf.WriteString("    endloop\n  endfacet\n")
	}
	buf.WriteString("endsolid genx3d\n")
	return buf.Bytes(), nil
}

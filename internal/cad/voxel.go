package cad

import (
	"math"

	"github.com/rotisserie/eris"
)

// voxelCells is the grid resolution along the longest side of a boolean
// solid's bounds.
const voxelCells = 64

// ErrMeshEmpty is returned when a boolean solid has no sampled volume,
// for example a cut that removes everything.
var ErrMeshEmpty = eris.New("cad: solid has no volume to mesh")

type voxelGrid struct {
	origin Vec3
	step   float64
	n      [3]int
	filled []bool
}

func (g *voxelGrid) at(c [3]int) bool {
	for a := 0; a < 3; a++ {
		if c[a] < 0 || c[a] >= g.n[a] {
			return false
		}
	}
	return g.filled[(c[2]*g.n[1]+c[1])*g.n[0]+c[0]]
}

func (g *voxelGrid) corner(c [3]int) Vec3 {
	return Vec3{
		g.origin.X + float64(c[0])*g.step,
		g.origin.Y + float64(c[1])*g.step,
		g.origin.Z + float64(c[2])*g.step,
	}
}

// sampleVoxels fills a cubic grid over sh's bounds, marking each cell whose
// centre lies inside sh.
func sampleVoxels(sh Shape) (*voxelGrid, error) {
	b := sh.Bounds()
	size := b.Size()
	longest := math.Max(size.X, math.Max(size.Y, size.Z))
	if !(longest > 0) || math.IsInf(longest, 0) {
		return nil, ErrMeshEmpty
	}
	g := &voxelGrid{origin: b.Min, step: longest / voxelCells}
	for a, extent := range [3]float64{size.X, size.Y, size.Z} {
		g.n[a] = max(1, int(math.Ceil(extent/g.step-1e-9)))
	}
	g.filled = make([]bool, g.n[0]*g.n[1]*g.n[2])

	solid := false
	i := 0
	for z := 0; z < g.n[2]; z++ {
		for y := 0; y < g.n[1]; y++ {
			for x := 0; x < g.n[0]; x++ {
				p := g.corner([3]int{x, y, z}).Add(Vec3{g.step / 2, g.step / 2, g.step / 2})
				if sh.Contains(p) {
					g.filled[i] = true
					solid = true
				}
				i++
			}
		}
	}
	if !solid {
		return nil, ErrMeshEmpty
	}
	return g, nil
}

// meshVoxels approximates a boolean solid by the closed surface of its
// voxelization. Exposed cell faces are merged into strips along one axis.
func meshVoxels(sh Shape) ([]triangle, error) {
	g, err := sampleVoxels(sh)
	if err != nil {
		return nil, err
	}

	var out []triangle
	for a := 0; a < 3; a++ {
		u, v := (a+1)%3, (a+2)%3
		for _, sign := range [2]int{1, -1} {
			exposed := func(c [3]int) bool {
				if !g.at(c) {
					return false
				}
				c[a] += sign
				return !g.at(c)
			}
			var c [3]int
			for c[a] = 0; c[a] < g.n[a]; c[a]++ {
				for c[v] = 0; c[v] < g.n[v]; c[v]++ {
					for c[u] = 0; c[u] < g.n[u]; {
						if !exposed(c) {
							c[u]++
							continue
						}
						start := c[u]
						for c[u] < g.n[u] && exposed(c) {
							c[u]++
						}
						out = append(out, stripFace(g, c, a, u, v, sign, start)...)
					}
				}
			}
		}
	}
	return out, nil
}

// stripFace returns the two triangles covering cells start..c[u]-1 on the
// face of axis a, wound so the normal points along sign.
func stripFace(g *voxelGrid, c [3]int, a, u, v, sign, start int) []triangle {
	if sign > 0 {
		c[a]++
	}
	end := c[u]
	at := func(pu, pv int) Vec3 {
		k := c
		k[u], k[v] = pu, pv
		return g.corner(k)
	}
	p0 := at(start, c[v])
	p1 := at(end, c[v])
	p2 := at(end, c[v]+1)
	p3 := at(start, c[v]+1)
	if sign > 0 {
		return quad(p0, p1, p2, p3)
	}
	return quad(p0, p3, p2, p1)
}

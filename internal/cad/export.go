package cad

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Supported export formats.
const (
	FormatSTEP = "STEP"
	FormatSTL  = "STL"
)

// NormalizeFormat maps user spellings (step, stp, stl) to a format constant.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "STEP", "STP", "":
		return FormatSTEP, nil
	case "STL":
		return FormatSTL, nil
	default:
		return "", eris.Errorf("cad: unsupported export format %q (use STEP or STL)", format)
	}
}

// Extension returns the file extension for a format constant.
func Extension(format string) string {
	if format == FormatSTL {
		return "stl"
	}
	return "step"
}

// Export writes the solid of w to path. The file appears atomically: it is
// written to a temporary sibling and renamed into place.
func Export(w *Workplane, path string, format string) error {
	if w == nil {
		return eris.New("cad: export of nil workplane")
	}
	if w.err != nil {
		return w.err
	}
	if w.solid == nil {
		return eris.Wrap(ErrNoSolid, "cad: export")
	}
	if path == "" {
		return eris.New("cad: export path is empty")
	}
	f, err := NormalizeFormat(format)
	if err != nil {
		return err
	}

	var data []byte
	switch f {
	case FormatSTL:
		data, err = encodeSTL(w.solid)
	default:
		data = encodeSTEP(w.solid, filepath.Base(path), time.Now().UTC())
	}
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return eris.Wrap(err, "cad: create temp file")
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return eris.Wrap(err, "cad: write model")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return eris.Wrap(err, "cad: close model")
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return eris.Wrap(err, "cad: rename model")
	}
	return nil
}

// stepWriter emits ISO 10303-21 entity instances.
type stepWriter struct {
	buf  bytes.Buffer
	next int
}

func (s *stepWriter) add(format string, args ...any) int {
	s.next++
	fmt.Fprintf(&s.buf, "#%d=", s.next)
	fmt.Fprintf(&s.buf, format, args...)
	s.buf.WriteString(";\n")
	return s.next
}

func stepReal(v float64) string {
	if v == 0 {
		return "0."
	}
	s := strconv.FormatFloat(v, 'G', 12, 64)
	if !strings.ContainsAny(s, ".E") {
		s += "."
	} else if strings.Contains(s, "E") && !strings.Contains(s, ".") {
		s = strings.Replace(s, "E", ".E", 1)
	}
	return s
}

func (s *stepWriter) point(p Vec3) int {
	return s.add("CARTESIAN_POINT('',(%s,%s,%s))", stepReal(p.X), stepReal(p.Y), stepReal(p.Z))
}

func (s *stepWriter) direction(d Vec3) int {
	return s.add("DIRECTION('',(%s,%s,%s))", stepReal(d.X), stepReal(d.Y), stepReal(d.Z))
}

func (s *stepWriter) axis1(loc, axis Vec3) int {
	p := s.point(loc)
	d := s.direction(axis)
	return s.add("AXIS1_PLACEMENT('',#%d,#%d)", p, d)
}

func (s *stepWriter) shape(sh Shape) int {
	switch v := sh.(type) {
	case Block:
		p := s.point(v.Min)
		z := s.direction(Vec3{0, 0, 1})
		x := s.direction(Vec3{1, 0, 0})
		pl := s.add("AXIS2_PLACEMENT_3D('',#%d,#%d,#%d)", p, z, x)
		size := v.Max.Sub(v.Min)
		return s.add("BLOCK('',#%d,%s,%s,%s)", pl, stepReal(size.X), stepReal(size.Y), stepReal(size.Z))
	case Cylinder:
		ax := s.axis1(v.Base, v.Axis)
		return s.add("RIGHT_CIRCULAR_CYLINDER('',#%d,%s,%s)", ax, stepReal(v.Height), stepReal(v.Radius))
	case Sphere:
		p := s.point(v.Center)
		return s.add("SPHERE('',%s,#%d)", stepReal(v.Radius), p)
	case Torus:
		ax := s.axis1(v.Center, v.Axis)
		return s.add("TORUS('',#%d,%s,%s)", ax, stepReal(v.Major), stepReal(v.Minor))
	case Boolean:
		a := s.shape(v.A)
		b := s.shape(v.B)
		op := map[Op]string{OpUnion: ".UNION.", OpDifference: ".DIFFERENCE.", OpIntersection: ".INTERSECTION."}[v.Op]
		return s.add("BOOLEAN_RESULT('',%s,#%d,#%d)", op, a, b)
	default:
		panic(fmt.Sprintf("cad: unknown shape %T", sh))
	}
}

func encodeSTEP(sh Shape, name string, now time.Time) []byte {
	var w stepWriter
	tree := w.shape(sh)
	w.add("CSG_SOLID('genx3d',#%d)", tree)

	var out bytes.Buffer
	out.WriteString("ISO-10303-21;\nHEADER;\n")
	out.WriteString("FILE_DESCRIPTION(('genx3d constructive solid model'),'2;1');\n")
	fmt.Fprintf(&out, "FILE_NAME('%s','%s',('genx3d'),(''),'genx3d cad','genx3d','');\n",
		strings.ReplaceAll(name, "'", "''"), now.Format("2006-01-02T15:04:05"))
	out.WriteString("FILE_SCHEMA(('AUTOMOTIVE_DESIGN { 1 0 10303 214 1 1 1 1 }'));\nENDSEC;\nDATA;\n")
	out.Write(w.buf.Bytes())
	out.WriteString("ENDSEC;\nEND-ISO-10303-21;\n")
	return out.Bytes()
}

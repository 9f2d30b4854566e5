// Package parts builds parametric parts (boxes, cylinders and bolted
// flanges) directly, without going through code generation.
package parts

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/genx3d/genx3d/internal/cad"
	"github.com/genx3d/genx3d/internal/model"
)

// Kind is a part family.
type Kind string

const (
	KindBox      Kind = "box"
	KindCylinder Kind = "cylinder"
	KindFlange   Kind = "flange"
)

// DefaultBoltCount is used when a flange spec leaves BoltCount at zero.
const DefaultBoltCount = 6

// Spec describes one part. Only the fields of its Kind are used. Lengths
// are in millimetres.
type Spec struct {
	Kind Kind `json:"kind"`

	Length float64 `json:"length,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Radius float64 `json:"radius,omitempty"`

	OuterDiameter      float64 `json:"outer_diameter,omitempty"`
	InnerDiameter      float64 `json:"inner_diameter,omitempty"`
	Thickness          float64 `json:"thickness,omitempty"`
	BoltCircleDiameter float64 `json:"bolt_circle_diameter,omitempty"`
	BoltHoleDiameter   float64 `json:"bolt_hole_diameter,omitempty"`
	BoltCount          int     `json:"bolt_count,omitempty"`
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = eris.New("parts: invalid spec")

func invalid(format string, args ...any) error {
	return eris.Wrapf(ErrInvalid, format, args...)
}

func requirePositive(fields map[string]float64) error {
	for _, name := range []string{"length", "width", "height", "radius", "outer_diameter", "inner_diameter", "thickness", "bolt_circle_diameter", "bolt_hole_diameter"} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		if !(v > 0) || math.IsInf(v, 0) {
			return invalid("%s must be positive, got %v", name, v)
		}
	}
	return nil
}

// Validate checks the dimensions for the spec's kind and fills the default
// bolt count.
func (s *Spec) Validate() error {
	switch s.Kind {
	case KindBox:
		return requirePositive(map[string]float64{"length": s.Length, "width": s.Width, "height": s.Height})
	case KindCylinder:
		return requirePositive(map[string]float64{"radius": s.Radius, "height": s.Height})
	case KindFlange:
		if err := requirePositive(map[string]float64{
			"outer_diameter":       s.OuterDiameter,
			"inner_diameter":       s.InnerDiameter,
			"thickness":            s.Thickness,
			"bolt_circle_diameter": s.BoltCircleDiameter,
			"bolt_hole_diameter":   s.BoltHoleDiameter,
		}); err != nil {
			return err
		}
		if s.BoltCount == 0 {
			s.BoltCount = DefaultBoltCount
		}
		switch {
		case s.BoltCount < 0:
			return invalid("bolt_count must be positive, got %d", s.BoltCount)
		case s.InnerDiameter >= s.OuterDiameter:
			return invalid("inner diameter must be less than outer diameter")
		case s.BoltCircleDiameter >= s.OuterDiameter:
			return invalid("bolt circle diameter must be less than outer diameter")
		case s.BoltCircleDiameter <= s.InnerDiameter:
			return invalid("bolt circle diameter must be greater than inner diameter")
		case s.BoltCircleDiameter+s.BoltHoleDiameter > s.OuterDiameter,
			s.BoltCircleDiameter-s.BoltHoleDiameter < s.InnerDiameter:
			return invalid("bolt holes must fit between the inner and outer edges")
		}
		return nil
	case "":
		return invalid("kind is required (box, cylinder or flange)")
	default:
		return invalid("unknown kind %q (use box, cylinder or flange)", s.Kind)
	}
}

// Build validates the spec and constructs the solid.
func (s Spec) Build() (*cad.Workplane, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	wp := cad.NewWorkplane("XY")
	switch s.Kind {
	case KindBox:
		wp = wp.Box(s.Length, s.Width, s.Height)
	case KindCylinder:
		wp = wp.Cylinder(s.Height, s.Radius)
	case KindFlange:
		wp = wp.Circle(s.OuterDiameter / 2).Circle(s.InnerDiameter / 2)
		r := s.BoltCircleDiameter / 2
		for i := range s.BoltCount {
			a := 2 * math.Pi * float64(i) / float64(s.BoltCount)
			wp = wp.MoveTo(r*math.Cos(a), r*math.Sin(a)).Circle(s.BoltHoleDiameter / 2)
		}
		wp = wp.Extrude(s.Thickness)
	}
	if err := wp.Err(); err != nil {
		return nil, eris.Wrap(err, "parts: build")
	}
	return wp, nil
}

// Describe returns a one-line human summary.
func (s Spec) Describe() string {
	switch s.Kind {
	case KindBox:
		return fmt.Sprintf("box %g x %g x %g", s.Length, s.Width, s.Height)
	case KindCylinder:
		return fmt.Sprintf("cylinder r=%g, h=%g", s.Radius, s.Height)
	case KindFlange:
		return fmt.Sprintf("flange OD=%g, ID=%g, thickness=%g, %d bolt holes", s.OuterDiameter, s.InnerDiameter, s.Thickness, s.BoltCount)
	default:
		return string(s.Kind)
	}
}

// Store allocates export targets and confirms written files.
type Store interface {
	Allocate(format string) (model.GeneratedModel, error)
	Confirm(exec model.Execution) (model.GeneratedModel, error)
}

// Export builds the part and writes it into the model store.
func Export(spec Spec, store Store, format string) (model.GeneratedModel, error) {
	wp, err := spec.Build()
	if err != nil {
		return model.GeneratedModel{}, err
	}
	return ExportSolid(wp, store, format)
}

// ExportSolid writes an already built solid into the model store.
func ExportSolid(wp *cad.Workplane, store Store, format string) (model.GeneratedModel, error) {
	target, err := store.Allocate(format)
	if err != nil {
		return model.GeneratedModel{}, err
	}
	if err := cad.Export(wp, target.Path, target.Format); err != nil {
		return model.GeneratedModel{}, eris.Wrap(err, "parts: export")
	}
	return store.Confirm(model.Execution{ModelID: target.ID, Path: target.Path})
}

package structure

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// AxisAngle is a rotation of Angle radians around Axis.
type AxisAngle struct {
	Axis  r3.Vec
	Angle float64
}

// Transform rotates node positions about the origin, in order, then
// translates them.
type Transform struct {
	Rotations   []AxisAngle
	Translation r3.Vec
}

func Identity() Transform {
	return Transform{}
}

func Translate(v r3.Vec) Transform {
	return Transform{Translation: v}
}

// Rotate returns a copy of t with one more rotation applied before translation.
func (t Transform) Rotate(axis r3.Vec, angle float64) Transform {
	out := Transform{
		Rotations:   append(append([]AxisAngle(nil), t.Rotations...), AxisAngle{Axis: axis, Angle: angle}),
		Translation: t.Translation,
	}
	return out
}

// Translate returns a copy of t with an extra translation.
func (t Transform) Translate(v r3.Vec) Transform {
	return Transform{
		Rotations:   append([]AxisAngle(nil), t.Rotations...),
		Translation: r3.Add(t.Translation, v),
	}
}

func (t Transform) ApplyPoint(p r3.Vec) r3.Vec {
	for _, rot := range t.Rotations {
		if rot.Angle == 0 || r3.Norm(rot.Axis) == 0 {
			continue
		}
		p = r3.NewRotation(rot.Angle, rot.Axis).Rotate(p)
	}
	return r3.Add(p, t.Translation)
}

// Apply returns a transformed copy of s. Marker offsets are rotated but not
// translated.
func Apply(s Spec, t Transform) Spec {
	out := s.Clone()
	for i := range out.Nodes {
		out.Nodes[i].Pos = t.ApplyPoint(out.Nodes[i].Pos)
	}
	rotOnly := Transform{Rotations: t.Rotations}
	for i := range out.Markers {
		out.Markers[i].Offset = rotOnly.ApplyPoint(out.Markers[i].Offset)
	}
	return out
}

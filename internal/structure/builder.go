package structure

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Builder accumulates a Spec declaratively. Every method returns a new
// Builder; the receiver is never modified, so partially built specs can be
// shared and extended independently.
type Builder struct {
	spec Spec
}

func NewBuilder(name string) Builder {
	return Builder{spec: Spec{Name: name}}
}

// From starts a builder from an existing spec.
func From(s Spec) Builder {
	return Builder{spec: s.Clone()}
}

func (b Builder) AddNode(index int, x, y, z float64) Builder {
	out := b.spec.Clone()
	out.Nodes = append(out.Nodes, Node{Index: index, Pos: r3.Vec{X: x, Y: y, Z: z}})
	return Builder{spec: out}
}

func (b Builder) AddRod(r Rod) Builder {
	out := b.spec.Clone()
	r.Tags = append([]string(nil), r.Tags...)
	out.Rods = append(out.Rods, r)
	return Builder{spec: out}
}

func (b Builder) AddRods(rods ...Rod) Builder {
	for _, r := range rods {
		b = b.AddRod(r)
	}
	return b
}

func (b Builder) AddMuscle(m Muscle) Builder {
	out := b.spec.Clone()
	m.Tags = append([]string(nil), m.Tags...)
	out.Muscles = append(out.Muscles, m)
	return Builder{spec: out}
}

func (b Builder) AddMuscles(muscles ...Muscle) Builder {
	for _, m := range muscles {
		b = b.AddMuscle(m)
	}
	return b
}

func (b Builder) AddMarker(m Marker) Builder {
	out := b.spec.Clone()
	out.Markers = append(out.Markers, m)
	return Builder{spec: out}
}

func (b Builder) Transform(t Transform) Builder {
	return Builder{spec: Apply(b.spec, t)}
}

// Spec returns a copy of the accumulated spec.
func (b Builder) Spec() Spec {
	return b.spec.Clone()
}

// Build validates and returns the spec.
func (b Builder) Build() (Spec, error) {
	s := b.Spec()
	if err := Validate(s); err != nil {
		return Spec{}, err
	}
	return s, nil
}

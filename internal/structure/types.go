// Package structure describes tensegrity units independently of any physics
// engine: nodes, rods, cable muscles and observation markers.
package structure

import (
	"gonum.org/v1/gonum/spatial/r3"
)

type Role string

const (
	RoleActive  Role = "active"
	RolePassive Role = "passive"
)

func (r Role) Valid() bool {
	return r == RoleActive || r == RolePassive
}

type Node struct {
	Index int
	Pos   r3.Vec
}

type Rod struct {
	From   int
	To     int
	Mass   float64
	Radius float64
	Tags   []string
}

// Muscle is a cable actuator between two nodes. Group names the control
// channel; an empty group falls back to the role name.
type Muscle struct {
	From       int
	To         int
	Role       Role
	Stiffness  float64
	Damping    float64
	Pretension float64
	Group      string
	Tags       []string
}

// GroupName returns the control channel the muscle belongs to.
func (m Muscle) GroupName() string {
	if m.Group != "" {
		return m.Group
	}
	return string(m.Role)
}

// Marker tracks a point at Offset from Node, which must be an endpoint of Rod.
type Marker struct {
	Rod    int
	Node   int
	Offset r3.Vec
}

type Spec struct {
	Name    string
	Nodes   []Node
	Rods    []Rod
	Muscles []Muscle
	Markers []Marker
}

// Clone returns a deep copy so derived specs never share backing arrays.
func (s Spec) Clone() Spec {
	out := Spec{
		Name:    s.Name,
		Nodes:   append([]Node(nil), s.Nodes...),
		Rods:    make([]Rod, len(s.Rods)),
		Muscles: make([]Muscle, len(s.Muscles)),
		Markers: append([]Marker(nil), s.Markers...),
	}
	for i, r := range s.Rods {
		r.Tags = append([]string(nil), r.Tags...)
		out.Rods[i] = r
	}
	for i, m := range s.Muscles {
		m.Tags = append([]string(nil), m.Tags...)
		out.Muscles[i] = m
	}
	return out
}

// NodePosition looks a node up by index.
func (s Spec) NodePosition(index int) (r3.Vec, bool) {
	for _, n := range s.Nodes {
		if n.Index == index {
			return n.Pos, true
		}
	}
	return r3.Vec{}, false
}

// MaxIndex returns the largest node index, or -1 for an empty spec.
func (s Spec) MaxIndex() int {
	max := -1
	for _, n := range s.Nodes {
		if n.Index > max {
			max = n.Index
		}
	}
	return max
}

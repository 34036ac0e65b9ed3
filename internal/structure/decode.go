package structure

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"gonum.org/v1/gonum/spatial/r3"
)

type document struct {
	Name    string           `yaml:"name"`
	Nodes   []nodeDocument   `yaml:"nodes"`
	Rods    []rodDocument    `yaml:"rods"`
	Muscles []muscleDocument `yaml:"muscles"`
	Markers []markerDocument `yaml:"markers"`
}

type nodeDocument struct {
	Index int     `yaml:"index"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Z     float64 `yaml:"z"`
}

type rodDocument struct {
	From   int      `yaml:"from"`
	To     int      `yaml:"to"`
	Mass   float64  `yaml:"mass"`
	Radius float64  `yaml:"radius"`
	Tags   []string `yaml:"tags,omitempty"`
}

type muscleDocument struct {
	From       int      `yaml:"from"`
	To         int      `yaml:"to"`
	Role       string   `yaml:"role"`
	Stiffness  float64  `yaml:"stiffness"`
	Damping    float64  `yaml:"damping"`
	Pretension float64  `yaml:"pretension"`
	Group      string   `yaml:"group,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
}

type markerDocument struct {
	Rod    int       `yaml:"rod"`
	Node   int       `yaml:"node"`
	Offset []float64 `yaml:"offset,omitempty"`
}

// Decode parses a YAML (or JSON, which YAML accepts) structure document and
// validates it.
func Decode(data []byte) (Spec, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Spec{}, fmt.Errorf("decode structure: %w", err)
	}

	s := Spec{Name: doc.Name}
	for _, n := range doc.Nodes {
		s.Nodes = append(s.Nodes, Node{Index: n.Index, Pos: r3.Vec{X: n.X, Y: n.Y, Z: n.Z}})
	}
	for _, r := range doc.Rods {
		s.Rods = append(s.Rods, Rod{From: r.From, To: r.To, Mass: r.Mass, Radius: r.Radius, Tags: r.Tags})
	}
	for _, m := range doc.Muscles {
		s.Muscles = append(s.Muscles, Muscle{
			From:       m.From,
			To:         m.To,
			Role:       Role(m.Role),
			Stiffness:  m.Stiffness,
			Damping:    m.Damping,
			Pretension: m.Pretension,
			Group:      m.Group,
			Tags:       m.Tags,
		})
	}
	for i, mk := range doc.Markers {
		var offset r3.Vec
		switch len(mk.Offset) {
		case 0:
		case 3:
			offset = r3.Vec{X: mk.Offset[0], Y: mk.Offset[1], Z: mk.Offset[2]}
		default:
			return Spec{}, newError(KindBadMarker, "marker", i, "offset needs 3 components, got %d", len(mk.Offset))
		}
		s.Markers = append(s.Markers, Marker{Rod: mk.Rod, Node: mk.Node, Offset: offset})
	}

	if err := Validate(s); err != nil {
		return Spec{}, err
	}
	return s, nil
}

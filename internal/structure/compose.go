package structure

import (
	"fmt"
)

// Mapping maps a child's local node indices into the merged index space.
type Mapping map[int]int

// Compose merges child, placed by t, into parent's node space. Child nodes
// are renumbered after parent's largest index in declaration order. Bridge
// muscles connect the two: From is a parent index, To a child-local index.
// Neither input is modified.
func Compose(parent, child Spec, t Transform, bridges []Muscle) (Spec, Mapping, error) {
	if err := Validate(parent); err != nil {
		return Spec{}, nil, fmt.Errorf("parent %q: %w", parent.Name, err)
	}
	if err := Validate(child); err != nil {
		return Spec{}, nil, fmt.Errorf("child %q: %w", child.Name, err)
	}

	placed := Apply(child, t)
	next := parent.MaxIndex() + 1
	mapping := make(Mapping, len(placed.Nodes))
	for i, n := range placed.Nodes {
		mapping[n.Index] = next + i
	}

	merged := parent.Clone()
	rodOffset := len(merged.Rods)
	for _, n := range placed.Nodes {
		merged.Nodes = append(merged.Nodes, Node{Index: mapping[n.Index], Pos: n.Pos})
	}
	for _, r := range placed.Rods {
		r.From, r.To = mapping[r.From], mapping[r.To]
		merged.Rods = append(merged.Rods, r)
	}
	for _, m := range placed.Muscles {
		m.From, m.To = mapping[m.From], mapping[m.To]
		merged.Muscles = append(merged.Muscles, m)
	}
	for _, mk := range placed.Markers {
		mk.Rod += rodOffset
		mk.Node = mapping[mk.Node]
		merged.Markers = append(merged.Markers, mk)
	}
	for i, b := range bridges {
		to, ok := mapping[b.To]
		if !ok {
			return Spec{}, nil, newError(KindDanglingNode, "bridge", i, "child node %d not defined", b.To)
		}
		b.Tags = append([]string(nil), b.Tags...)
		b.To = to
		merged.Muscles = append(merged.Muscles, b)
	}

	if err := Validate(merged); err != nil {
		return Spec{}, nil, fmt.Errorf("merged %q: %w", merged.Name, err)
	}
	return merged, mapping, nil
}

package structure

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const minLength = 1e-9

// Validate checks every invariant assembly relies on and reports the first
// violation in declaration order.
func Validate(s Spec) error {
	positions := make(map[int]r3.Vec, len(s.Nodes))
	for i, n := range s.Nodes {
		if _, exists := positions[n.Index]; exists {
			return newError(KindDuplicateNode, "node", i, "index %d declared twice", n.Index)
		}
		if !finite(n.Pos) {
			return newError(KindBadParameter, "node", i, "non-finite position %v", n.Pos)
		}
		positions[n.Index] = n.Pos
	}

	onRod := make(map[int]bool, len(s.Nodes))
	for i, r := range s.Rods {
		a, okA := positions[r.From]
		b, okB := positions[r.To]
		if !okA || !okB {
			return newError(KindDanglingNode, "rod", i, "references undefined node (%d, %d)", r.From, r.To)
		}
		if r.From == r.To || r3.Norm(r3.Sub(b, a)) < minLength {
			return newError(KindDegenerateRod, "rod", i, "endpoints %d and %d coincide", r.From, r.To)
		}
		if r.Mass < 0 || r.Radius < 0 {
			return newError(KindBadParameter, "rod", i, "mass=%v radius=%v", r.Mass, r.Radius)
		}
		onRod[r.From] = true
		onRod[r.To] = true
	}

	groupRoles := make(map[string]Role)
	for i, m := range s.Muscles {
		a, okA := positions[m.From]
		b, okB := positions[m.To]
		if !okA || !okB {
			return newError(KindDanglingNode, "muscle", i, "references undefined node (%d, %d)", m.From, m.To)
		}
		if m.From == m.To || r3.Norm(r3.Sub(b, a)) < minLength {
			return newError(KindDegenerateMuscle, "muscle", i, "attachment points %d and %d coincide", m.From, m.To)
		}
		if !onRod[m.From] || !onRod[m.To] {
			return newError(KindUnattachedNode, "muscle", i, "endpoint (%d, %d) is not on a rod", m.From, m.To)
		}
		if !m.Role.Valid() {
			return newError(KindUnknownRole, "muscle", i, "role %q", m.Role)
		}
		if m.Stiffness < 0 || m.Damping < 0 || m.Pretension < 0 {
			return newError(KindBadParameter, "muscle", i, "stiffness=%v damping=%v pretension=%v", m.Stiffness, m.Damping, m.Pretension)
		}
		group := m.GroupName()
		if role, seen := groupRoles[group]; seen && role != m.Role {
			return newError(KindGroupRole, "muscle", i, "group %q mixes %s and %s", group, role, m.Role)
		}
		groupRoles[group] = m.Role
	}

	for i, mk := range s.Markers {
		if mk.Rod < 0 || mk.Rod >= len(s.Rods) {
			return newError(KindBadMarker, "marker", i, "rod %d out of range", mk.Rod)
		}
		r := s.Rods[mk.Rod]
		if mk.Node != r.From && mk.Node != r.To {
			return newError(KindBadMarker, "marker", i, "node %d is not an endpoint of rod %d", mk.Node, mk.Rod)
		}
	}
	return nil
}

func finite(v r3.Vec) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

package tensegrity

import (
	"gonum.org/v1/gonum/spatial/r3"

	"tensegrity/internal/assembly"
	"tensegrity/internal/impedance"
	"tensegrity/internal/physics"
	"tensegrity/internal/structure"
)

// Spec returns the assembled spec, or false while unbuilt.
func (m *Model) Spec() (structure.Spec, bool) {
	if m.structure == nil {
		return structure.Spec{}, false
	}
	return m.structure.Spec.Clone(), true
}

// Structure exposes the assembled handles. Nil while unbuilt.
func (m *Model) Structure() *assembly.Structure {
	return m.structure
}

func (m *Model) AllMuscles() []physics.Actuator {
	return m.musclesByRole("")
}

func (m *Model) ActiveMuscles() []physics.Actuator {
	return m.musclesByRole(structure.RoleActive)
}

func (m *Model) PassiveMuscles() []physics.Actuator {
	return m.musclesByRole(structure.RolePassive)
}

func (m *Model) musclesByRole(role structure.Role) []physics.Actuator {
	if m.structure == nil {
		return nil
	}
	return m.structure.MusclesByRole(role)
}

// Groups returns the muscle groups sorted by name.
func (m *Model) Groups() []*impedance.Group {
	return append([]*impedance.Group(nil), m.groups...)
}

func (m *Model) Group(name string) (*impedance.Group, bool) {
	g, ok := m.byName[name]
	return g, ok
}

// StructureGroups returns the group partition of the assembled spec.
func (m *Model) StructureGroups() []structure.Group {
	if m.structure == nil {
		return nil
	}
	return structure.Groups(m.structure.Spec)
}

func (m *Model) Markers() []assembly.Marker {
	if m.structure == nil {
		return nil
	}
	return append([]assembly.Marker(nil), m.structure.Markers...)
}

// MarkerPositions returns this model's marker positions followed by each
// child's, depth first.
func (m *Model) MarkerPositions() []r3.Vec {
	var out []r3.Vec
	if m.structure != nil {
		out = m.structure.MarkerPositions()
	}
	for _, child := range m.children {
		out = append(out, child.MarkerPositions()...)
	}
	return out
}

// Mass is the total rod mass of the model and its children.
func (m *Model) Mass() float64 {
	total := 0.0
	if m.structure != nil {
		total = m.structure.Mass()
	}
	for _, child := range m.children {
		total += child.Mass()
	}
	return total
}

// CenterOfMass is the mass-weighted rod center of the model and its
// children. A massless tree falls back to the structure's own geometric
// center.
func (m *Model) CenterOfMass() r3.Vec {
	if mass := m.Mass(); mass > 0 {
		return r3.Scale(1/mass, m.massMoment())
	}
	if m.structure != nil {
		return m.structure.CenterOfMass()
	}
	return r3.Vec{}
}

func (m *Model) massMoment() r3.Vec {
	var sum r3.Vec
	if m.structure != nil {
		sum = m.structure.MassMoment()
	}
	for _, child := range m.children {
		sum = r3.Add(sum, child.massMoment())
	}
	return sum
}

// MuscleRatio is the mean active cable stiffness over the mean passive
// cable stiffness, or 0 when either set is empty or the passive mean is 0.
func (m *Model) MuscleRatio() float64 {
	active, passive := meanStiffness(m.ActiveMuscles()), meanStiffness(m.PassiveMuscles())
	if passive == 0 {
		return 0
	}
	return active / passive
}

func meanStiffness(acts []physics.Actuator) float64 {
	if len(acts) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range acts {
		sum += a.Stiffness()
	}
	return sum / float64(len(acts))
}

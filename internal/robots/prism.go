package robots

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"tensegrity/internal/structure"
)

const (
	PrismRadius     = 10.0
	PrismHeight     = 20.0
	PrismTwist      = 150.0
	PrismRodMass    = 0.2
	PrismStiffness  = 500.0
	PrismDamping    = 5.0
	PrismPretension = 1.0
	PayloadScale    = 0.35
	PayloadRodMass  = 0.5
)

// Prism is the three bar twisted prism. Bottom nodes 0-2 and top nodes 3-5
// lie on circles in the XZ plane; each rod climbs PrismTwist degrees. The
// three vertical cables are active with one group each, the top triangle is
// one active group and the bottom triangle is passive.
func Prism() structure.Spec {
	return prism("prism", PrismRadius, PrismHeight, PrismRodMass)
}

func prism(name string, radius, height, rodMass float64) structure.Spec {
	b := structure.NewBuilder(name)
	for i := 0; i < 3; i++ {
		a := 2 * math.Pi * float64(i) / 3
		b = b.AddNode(i, radius*math.Cos(a), 0, radius*math.Sin(a))
	}
	twist := PrismTwist * math.Pi / 180
	for i := 0; i < 3; i++ {
		a := 2*math.Pi*float64(i)/3 + twist
		b = b.AddNode(3+i, radius*math.Cos(a), height, radius*math.Sin(a))
	}
	for i := 0; i < 3; i++ {
		b = b.AddRod(structure.Rod{From: i, To: 3 + i, Mass: rodMass})
	}
	for i := 0; i < 3; i++ {
		b = b.AddMuscle(structure.Muscle{
			From: i, To: (i + 1) % 3,
			Role: structure.RolePassive, Stiffness: PrismStiffness, Damping: PrismDamping, Pretension: PrismPretension,
		})
	}
	for i := 0; i < 3; i++ {
		b = b.AddMuscle(structure.Muscle{
			From: 3 + i, To: 3 + (i+1)%3,
			Role: structure.RoleActive, Group: "top", Stiffness: PrismStiffness, Damping: PrismDamping, Pretension: PrismPretension,
		})
	}
	for i := 0; i < 3; i++ {
		b = b.AddMuscle(structure.Muscle{
			From: i, To: 3 + (i+2)%3,
			Role: structure.RoleActive, Group: fmt.Sprintf("vertical-%d", i), Stiffness: PrismStiffness, Damping: PrismDamping, Pretension: PrismPretension,
		})
	}
	for i := 0; i < 3; i++ {
		b = b.AddMarker(structure.Marker{Rod: i, Node: 3 + i})
	}
	return b.Spec()
}

// PrismPayload suspends a small, heavy prism inside a regular one. The inner
// prism's cables and the six suspension cables form the passive "payload"
// group.
func PrismPayload() (structure.Spec, error) {
	outer := prism("prism-payload", PrismRadius, PrismHeight, PrismRodMass)
	inner := retag(prism("payload", PrismRadius*PayloadScale, PrismHeight*PayloadScale, PayloadRodMass), structure.RolePassive, "payload")
	inner.Markers = nil

	place := structure.Translate(r3.Vec{Y: PrismHeight * (1 - PayloadScale) / 2})
	bridges := make([]structure.Muscle, 0, 6)
	for i := 0; i < 6; i++ {
		bridges = append(bridges, structure.Muscle{
			From: i, To: i,
			Role: structure.RolePassive, Group: "payload",
			Stiffness: PrismStiffness / 2, Damping: PrismDamping,
		})
	}
	spec, _, err := structure.Compose(outer, inner, place, bridges)
	if err != nil {
		return structure.Spec{}, fmt.Errorf("compose payload: %w", err)
	}
	return spec, nil
}

// retag moves every muscle of spec into one group with the given role.
func retag(spec structure.Spec, role structure.Role, group string) structure.Spec {
	out := spec.Clone()
	for i := range out.Muscles {
		out.Muscles[i].Role = role
		out.Muscles[i].Group = group
	}
	return out
}

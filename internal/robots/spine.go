package robots

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"tensegrity/internal/structure"
)

const (
	SpineReach      = 10.0
	SpineDepth      = 5.0
	SpineSpacing    = 8.0
	SpineRodMass    = 0.1
	SpineStiffness  = 800.0
	SpineDamping    = 8.0
	SpinePretension = 0.8
)

// Tetra is one spine vertebra: four rods from a shared center node to two
// rear tips in the horizontal plane and two front tips in the vertical one.
func Tetra() structure.Spec {
	b := structure.NewBuilder("tetra").
		AddNode(0, 0, 0, 0).
		AddNode(1, -SpineDepth, 0, SpineReach).
		AddNode(2, -SpineDepth, 0, -SpineReach).
		AddNode(3, SpineDepth, SpineReach, 0).
		AddNode(4, SpineDepth, -SpineReach, 0)
	for tip := 1; tip <= 4; tip++ {
		b = b.AddRod(structure.Rod{From: 0, To: tip, Mass: SpineRodMass})
	}
	return b.AddMarker(structure.Marker{Rod: 0, Node: 0}).Spec()
}

// TetraSpine stacks segments vertebrae along +X. Neighbouring vertebrae are
// joined by four active outer cables between matching tips, one group per
// tip, and four passive inner cables from front tips to the next rear tips.
func TetraSpine(segments int) (structure.Spec, error) {
	if segments < 1 {
		return structure.Spec{}, fmt.Errorf("%w: spine needs at least one segment, got %d", ErrInvalidParams, segments)
	}
	spine := Tetra()
	spine.Name = fmt.Sprintf("spine-%d", segments)
	prev := structure.Mapping{0: 0, 1: 1, 2: 2, 3: 3, 4: 4}

	for seg := 1; seg < segments; seg++ {
		var bridges []structure.Muscle
		for tip := 1; tip <= 4; tip++ {
			bridges = append(bridges, structure.Muscle{
				From: prev[tip], To: tip,
				Role: structure.RoleActive, Group: fmt.Sprintf("outer-%d", tip-1),
				Stiffness: SpineStiffness, Damping: SpineDamping, Pretension: SpinePretension,
			})
		}
		for _, front := range []int{3, 4} {
			for _, rear := range []int{1, 2} {
				bridges = append(bridges, structure.Muscle{
					From: prev[front], To: rear,
					Role: structure.RolePassive, Group: "inner",
					Stiffness: SpineStiffness, Damping: SpineDamping, Pretension: SpinePretension,
				})
			}
		}
		place := structure.Translate(r3.Vec{X: SpineSpacing * float64(seg)})
		merged, mapping, err := structure.Compose(spine, Tetra(), place, bridges)
		if err != nil {
			return structure.Spec{}, fmt.Errorf("segment %d: %w", seg, err)
		}
		spine, prev = merged, mapping
	}
	return spine, nil
}

package robots

import (
	"fmt"
	"math"

	"tensegrity/internal/structure"
)

const (
	T6RodLength     = 30.0
	T6RodMass       = 0.3
	T6RodRadius     = 0.5
	T6Stiffness     = 1000.0
	T6Damping       = 10.0
	T6Pretension    = 1.5
	T6PassiveFactor = 0.5
)

var t6Muscles = [][2]int{
	{0, 4}, {0, 5}, {0, 8}, {0, 10},
	{1, 6}, {1, 7}, {1, 8}, {1, 10},
	{2, 4}, {2, 5}, {2, 9}, {2, 11},
	{3, 7}, {3, 6}, {3, 9}, {3, 11},
	{4, 10}, {4, 11}, {5, 8}, {5, 9},
	{6, 10}, {6, 11}, {7, 8}, {7, 9},
}

// T6 is the six strut superball. Its twelve nodes are the vertices of a
// regular icosahedron; rods join opposite ends of each golden rectangle and
// cables run along every icosahedron edge except the six between parallel
// rods. Cables leaving nodes 0 to 3 are active, one group per node; the
// other eight are passive at half stiffness. Every node carries a marker.
func T6() structure.Spec {
	phi := (1 + math.Sqrt(5)) / 2
	h := T6RodLength / 2
	s := h / phi

	b := structure.NewBuilder("t6").
		AddNode(0, -s, -h, 0).
		AddNode(1, -s, h, 0).
		AddNode(2, s, -h, 0).
		AddNode(3, s, h, 0).
		AddNode(4, 0, -s, -h).
		AddNode(5, 0, -s, h).
		AddNode(6, 0, s, -h).
		AddNode(7, 0, s, h).
		AddNode(8, -h, 0, s).
		AddNode(9, h, 0, s).
		AddNode(10, -h, 0, -s).
		AddNode(11, h, 0, -s)

	for i := 0; i < 6; i++ {
		b = b.AddRod(structure.Rod{From: 2 * i, To: 2*i + 1, Mass: T6RodMass, Radius: T6RodRadius})
	}
	for _, pair := range t6Muscles {
		m := structure.Muscle{
			From:       pair[0],
			To:         pair[1],
			Role:       structure.RolePassive,
			Stiffness:  T6Stiffness * T6PassiveFactor,
			Damping:    T6Damping,
			Pretension: T6Pretension,
		}
		if pair[0] < 4 {
			m.Role = structure.RoleActive
			m.Stiffness = T6Stiffness
			m.Group = fmt.Sprintf("node-%d", pair[0])
		}
		b = b.AddMuscle(m)
	}
	for node := 0; node < 12; node++ {
		b = b.AddMarker(structure.Marker{Rod: node / 2, Node: node})
	}
	return b.Spec()
}

// Package assembly turns a validated structure.Spec into physics handles.
package assembly

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"tensegrity/internal/physics"
	"tensegrity/internal/structure"
)

type Muscle struct {
	Index    int
	Spec     structure.Muscle
	Actuator physics.Actuator
}

type Marker struct {
	Spec  structure.Marker
	Body  physics.Body
	point physics.Point
}

// Position returns the marker's current world position.
func (m Marker) Position() r3.Vec {
	return r3.Add(m.point.Position(), m.Spec.Offset)
}

// Structure is a spec materialized in a world. Points follow node
// declaration order, rods and muscles follow their own declaration order.
type Structure struct {
	Spec    structure.Spec
	Points  []physics.Point
	Rods    []physics.Body
	Muscles []Muscle
	Markers []Marker

	world       physics.World
	pointByNode map[int]physics.Point
	released    bool
}

// Build validates spec and creates its bodies and cables in world. On
// failure everything created so far is removed again.
func Build(spec structure.Spec, world physics.World) (*Structure, error) {
	if world == nil {
		return nil, errors.New("world is required")
	}
	if err := structure.Validate(spec); err != nil {
		return nil, err
	}

	s := &Structure{
		Spec:        spec.Clone(),
		world:       world,
		pointByNode: make(map[int]physics.Point, len(spec.Nodes)),
	}
	if err := s.build(); err != nil {
		if releaseErr := s.Release(); releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", releaseErr))
		}
		return nil, err
	}
	return s, nil
}

func (s *Structure) build() error {
	for _, n := range s.Spec.Nodes {
		p, err := s.world.AddPoint(n.Pos)
		if err != nil {
			return fmt.Errorf("add point for node %d: %w", n.Index, err)
		}
		s.Points = append(s.Points, p)
		s.pointByNode[n.Index] = p
	}
	for i, r := range s.Spec.Rods {
		body, err := s.world.AddRod(s.pointByNode[r.From], s.pointByNode[r.To], physics.RodSpec{Mass: r.Mass, Radius: r.Radius})
		if err != nil {
			return fmt.Errorf("add rod %d: %w", i, err)
		}
		s.Rods = append(s.Rods, body)
	}
	for i, m := range s.Spec.Muscles {
		a, b := s.pointByNode[m.From], s.pointByNode[m.To]
		length := r3.Norm(r3.Sub(b.Position(), a.Position()))
		act, err := s.world.AddCable(a, b, physics.CableSpec{
			Stiffness:  m.Stiffness,
			Damping:    m.Damping,
			RestLength: length - m.Pretension,
		})
		if err != nil {
			return fmt.Errorf("add muscle %d: %w", i, err)
		}
		s.Muscles = append(s.Muscles, Muscle{Index: i, Spec: m, Actuator: act})
	}
	for _, mk := range s.Spec.Markers {
		s.Markers = append(s.Markers, Marker{Spec: mk, Body: s.Rods[mk.Rod], point: s.pointByNode[mk.Node]})
	}
	return nil
}

// Release removes every handle from the world in reverse creation order.
func (s *Structure) Release() error {
	if s.released {
		return nil
	}
	var errs []error
	for i := len(s.Muscles) - 1; i >= 0; i-- {
		if err := s.world.RemoveCable(s.Muscles[i].Actuator); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(s.Rods) - 1; i >= 0; i-- {
		if err := s.world.RemoveRod(s.Rods[i]); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(s.Points) - 1; i >= 0; i-- {
		if err := s.world.RemovePoint(s.Points[i]); err != nil {
			errs = append(errs, err)
		}
	}
	s.Muscles, s.Rods, s.Points, s.Markers = nil, nil, nil, nil
	s.pointByNode = map[int]physics.Point{}
	s.released = true
	return errors.Join(errs...)
}

func (s *Structure) Point(node int) (physics.Point, bool) {
	p, ok := s.pointByNode[node]
	return p, ok
}

// MusclesByRole returns actuators in declaration order, filtered by role
// when role is non-empty.
func (s *Structure) MusclesByRole(role structure.Role) []physics.Actuator {
	out := make([]physics.Actuator, 0, len(s.Muscles))
	for _, m := range s.Muscles {
		if role == "" || m.Spec.Role == role {
			out = append(out, m.Actuator)
		}
	}
	return out
}

func (s *Structure) MarkerPositions() []r3.Vec {
	out := make([]r3.Vec, 0, len(s.Markers))
	for _, m := range s.Markers {
		out = append(out, m.Position())
	}
	return out
}

// Mass returns the total rod mass.
func (s *Structure) Mass() float64 {
	total := 0.0
	for _, r := range s.Rods {
		total += r.Mass()
	}
	return total
}

// MassMoment returns the sum of mass-weighted rod centers, so callers can
// combine several structures into one center of mass.
func (s *Structure) MassMoment() r3.Vec {
	var sum r3.Vec
	for _, r := range s.Rods {
		sum = r3.Add(sum, r3.Scale(r.Mass(), r.CenterOfMass()))
	}
	return sum
}

// CenterOfMass is the mass-weighted mean of rod centers, or the plain mean
// when every rod is massless.
func (s *Structure) CenterOfMass() r3.Vec {
	if mass := s.Mass(); mass > 0 {
		return r3.Scale(1/mass, s.MassMoment())
	}
	if len(s.Rods) == 0 {
		return r3.Vec{}
	}
	var sum r3.Vec
	for _, r := range s.Rods {
		sum = r3.Add(sum, r.CenterOfMass())
	}
	return r3.Scale(1/float64(len(s.Rods)), sum)
}

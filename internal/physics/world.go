package physics

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrUnknownHandle = errors.New("unknown physics handle")
	ErrForeignHandle = errors.New("handle belongs to another world")
	ErrInvalidStep   = errors.New("timestep must be > 0")
)

// Point is an attachment point. Rods and cables connect points; points shared
// by several rods move as one compound body.
type Point interface {
	ID() int
	Position() r3.Vec
	Velocity() r3.Vec
	Mass() float64
}

// Body is a rigid rod between two points.
type Body interface {
	ID() int
	Endpoints() (Point, Point)
	Mass() float64
	Length() float64
	CenterOfMass() r3.Vec
}

// Actuator is a tension-only cable whose force-generation parameters are
// rewritten by controllers and read by the solver on its next step.
type Actuator interface {
	ID() int
	Length() float64
	Velocity() float64
	Tension() float64
	Stiffness() float64
	Damping() float64
	RestLength() float64
	SetStiffness(k float64)
	SetDamping(c float64)
	SetRestLength(l float64)
}

type RodSpec struct {
	Mass   float64
	Radius float64
}

type CableSpec struct {
	Stiffness  float64
	Damping    float64
	RestLength float64
}

// World is the rigid-body collaborator a structure is assembled into.
type World interface {
	AddPoint(pos r3.Vec) (Point, error)
	AddRod(a, b Point, spec RodSpec) (Body, error)
	AddCable(a, b Point, spec CableSpec) (Actuator, error)
	RemoveCable(a Actuator) error
	RemoveRod(b Body) error
	RemovePoint(p Point) error
	Step(dt float64) error
}

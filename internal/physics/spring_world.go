package physics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	DefaultGravity     = 981.0
	DefaultIterations  = 8
	DefaultFriction    = 0.5
	DefaultAirDamping  = 0.01
	minConstraintDelta = 1e-12
)

type WorldConfig struct {
	// Gravity acts along -Y, in length units per second squared.
	Gravity float64
	// Ground enables a flat plane at Y=0.
	Ground bool
	// Friction is the fraction of tangential velocity removed on ground contact.
	Friction float64
	// Iterations is the number of rod-length projection passes per step.
	Iterations int
	// AirDamping is the fraction of velocity removed per second.
	AirDamping float64
}

func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Gravity:    DefaultGravity,
		Ground:     true,
		Friction:   DefaultFriction,
		Iterations: DefaultIterations,
		AirDamping: DefaultAirDamping,
	}
}

// SpringWorld is a small position-based solver: rod ends are point masses held
// at fixed distance, cables are tension-only damped springs. Points with zero
// mass are static.
type SpringWorld struct {
	cfg    WorldConfig
	nextID int

	points []*point
	rods   []*rod
	cables []*cable
}

func NewSpringWorld(cfg WorldConfig) *SpringWorld {
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultIterations
	}
	return &SpringWorld{cfg: cfg}
}

type point struct {
	world *SpringWorld
	id    int
	pos   r3.Vec
	prev  r3.Vec
	vel   r3.Vec
	force r3.Vec
	mass  float64
}

func (p *point) ID() int            { return p.id }
func (p *point) Position() r3.Vec   { return p.pos }
func (p *point) Velocity() r3.Vec   { return p.vel }
func (p *point) Mass() float64      { return p.mass }
func (p *point) inverseMass() float64 {
	if p.mass <= 0 {
		return 0
	}
	return 1 / p.mass
}

type rod struct {
	world  *SpringWorld
	id     int
	a, b   *point
	mass   float64
	radius float64
	length float64
}

func (r *rod) ID() int                   { return r.id }
func (r *rod) Endpoints() (Point, Point) { return r.a, r.b }
func (r *rod) Mass() float64             { return r.mass }
func (r *rod) Length() float64           { return r.length }
func (r *rod) CenterOfMass() r3.Vec {
	return r3.Scale(0.5, r3.Add(r.a.pos, r.b.pos))
}

type cable struct {
	world     *SpringWorld
	id        int
	a, b      *point
	stiffness float64
	damping   float64
	rest      float64
	tension   float64
}

func (c *cable) ID() int { return c.id }

func (c *cable) Length() float64 {
	return r3.Norm(r3.Sub(c.b.pos, c.a.pos))
}

func (c *cable) Velocity() float64 {
	d := r3.Sub(c.b.pos, c.a.pos)
	n := r3.Norm(d)
	if n < minConstraintDelta {
		return 0
	}
	return r3.Dot(r3.Scale(1/n, d), r3.Sub(c.b.vel, c.a.vel))
}

func (c *cable) Tension() float64    { return c.tension }
func (c *cable) Stiffness() float64  { return c.stiffness }
func (c *cable) Damping() float64    { return c.damping }
func (c *cable) RestLength() float64 { return c.rest }

func (c *cable) SetStiffness(k float64) { c.stiffness = math.Max(0, k) }
func (c *cable) SetDamping(d float64)   { c.damping = math.Max(0, d) }

// SetRestLength floors the rest length at zero.
func (c *cable) SetRestLength(l float64) { c.rest = math.Max(0, l) }

func (w *SpringWorld) newID() int {
	w.nextID++
	return w.nextID
}

func (w *SpringWorld) AddPoint(pos r3.Vec) (Point, error) {
	p := &point{world: w, id: w.newID(), pos: pos, prev: pos}
	w.points = append(w.points, p)
	return p, nil
}

func (w *SpringWorld) ownPoint(p Point) (*point, error) {
	own, ok := p.(*point)
	if !ok || own == nil {
		return nil, fmt.Errorf("%w: point %T", ErrUnknownHandle, p)
	}
	if own.world != w {
		return nil, fmt.Errorf("%w: point %d", ErrForeignHandle, own.id)
	}
	return own, nil
}

func (w *SpringWorld) AddRod(a, b Point, spec RodSpec) (Body, error) {
	pa, err := w.ownPoint(a)
	if err != nil {
		return nil, err
	}
	pb, err := w.ownPoint(b)
	if err != nil {
		return nil, err
	}
	length := r3.Norm(r3.Sub(pb.pos, pa.pos))
	if length < minConstraintDelta {
		return nil, fmt.Errorf("rod between points %d and %d has zero length", pa.id, pb.id)
	}
	half := spec.Mass / 2
	pa.mass += half
	pb.mass += half
	r := &rod{world: w, id: w.newID(), a: pa, b: pb, mass: spec.Mass, radius: spec.Radius, length: length}
	w.rods = append(w.rods, r)
	return r, nil
}

func (w *SpringWorld) AddCable(a, b Point, spec CableSpec) (Actuator, error) {
	pa, err := w.ownPoint(a)
	if err != nil {
		return nil, err
	}
	pb, err := w.ownPoint(b)
	if err != nil {
		return nil, err
	}
	if pa == pb {
		return nil, fmt.Errorf("cable endpoints are the same point %d", pa.id)
	}
	c := &cable{world: w, id: w.newID(), a: pa, b: pb}
	c.SetStiffness(spec.Stiffness)
	c.SetDamping(spec.Damping)
	c.SetRestLength(spec.RestLength)
	w.cables = append(w.cables, c)
	return c, nil
}

func (w *SpringWorld) RemoveCable(a Actuator) error {
	c, ok := a.(*cable)
	if !ok || c == nil || c.world != w {
		return fmt.Errorf("%w: cable %T", ErrUnknownHandle, a)
	}
	for i, existing := range w.cables {
		if existing == c {
			w.cables = append(w.cables[:i], w.cables[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: cable %d", ErrUnknownHandle, c.id)
}

func (w *SpringWorld) RemoveRod(b Body) error {
	r, ok := b.(*rod)
	if !ok || r == nil || r.world != w {
		return fmt.Errorf("%w: rod %T", ErrUnknownHandle, b)
	}
	for i, existing := range w.rods {
		if existing == r {
			w.rods = append(w.rods[:i], w.rods[i+1:]...)
			half := r.mass / 2
			r.a.mass = math.Max(0, r.a.mass-half)
			r.b.mass = math.Max(0, r.b.mass-half)
			return nil
		}
	}
	return fmt.Errorf("%w: rod %d", ErrUnknownHandle, r.id)
}

func (w *SpringWorld) RemovePoint(p Point) error {
	own, err := w.ownPoint(p)
	if err != nil {
		return err
	}
	for i, existing := range w.points {
		if existing == own {
			w.points = append(w.points[:i], w.points[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: point %d", ErrUnknownHandle, own.id)
}

// Counts reports the number of live points, rods and cables.
func (w *SpringWorld) Counts() (points, rods, cables int) {
	return len(w.points), len(w.rods), len(w.cables)
}

func (w *SpringWorld) Step(dt float64) error {
	if !(dt > 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidStep, dt)
	}

	for _, p := range w.points {
		p.force = r3.Vec{Y: -w.cfg.Gravity * p.mass}
	}
	for _, c := range w.cables {
		w.applyCable(c)
	}

	drag := math.Max(0, 1-w.cfg.AirDamping*dt)
	for _, p := range w.points {
		p.prev = p.pos
		inv := p.inverseMass()
		if inv == 0 {
			p.vel = r3.Vec{}
			continue
		}
		p.vel = r3.Scale(drag, r3.Add(p.vel, r3.Scale(inv*dt, p.force)))
		p.pos = r3.Add(p.pos, r3.Scale(dt, p.vel))
	}

	for i := 0; i < w.cfg.Iterations; i++ {
		for _, r := range w.rods {
			projectRod(r)
		}
	}

	for _, p := range w.points {
		if p.inverseMass() == 0 {
			continue
		}
		p.vel = r3.Scale(1/dt, r3.Sub(p.pos, p.prev))
		if w.cfg.Ground && p.pos.Y < 0 {
			p.pos.Y = 0
			if p.vel.Y < 0 {
				p.vel.Y = 0
			}
			keep := math.Max(0, 1-w.cfg.Friction)
			p.vel.X *= keep
			p.vel.Z *= keep
		}
	}
	return nil
}

func (w *SpringWorld) applyCable(c *cable) {
	d := r3.Sub(c.b.pos, c.a.pos)
	length := r3.Norm(d)
	c.tension = 0
	if length < minConstraintDelta {
		return
	}
	stretch := length - c.rest
	if stretch <= 0 {
		return
	}
	tension := c.stiffness*stretch + c.damping*c.Velocity()
	if tension <= 0 {
		return
	}
	c.tension = tension
	f := r3.Scale(tension/length, d)
	c.a.force = r3.Add(c.a.force, f)
	c.b.force = r3.Sub(c.b.force, f)
}

func projectRod(r *rod) {
	d := r3.Sub(r.b.pos, r.a.pos)
	current := r3.Norm(d)
	if current < minConstraintDelta {
		return
	}
	wa, wb := r.a.inverseMass(), r.b.inverseMass()
	total := wa + wb
	if total == 0 {
		return
	}
	correction := r3.Scale((current-r.length)/(current*total), d)
	r.a.pos = r3.Add(r.a.pos, r3.Scale(wa, correction))
	r.b.pos = r3.Sub(r.b.pos, r3.Scale(wb, correction))
}

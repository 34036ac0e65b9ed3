// Package impedance drives groups of cable actuators through a shared
// stiffness, damping and target triple.
package impedance

import (
	"log/slog"
	"math"

	"tensegrity/internal/logging"
	"tensegrity/internal/physics"
	"tensegrity/internal/structure"
)

type Mode int

const (
	// ModeRestLength writes the gains into each cable and uses the target as
	// its rest length.
	ModeRestLength Mode = iota
	// ModeImpedance treats the gains as impedance gains around a target
	// length and writes the commanded tension back as a cable rest length.
	ModeImpedance
	// ModeTension treats the target as a tension setpoint.
	ModeTension
)

func (m Mode) String() string {
	switch m {
	case ModeRestLength:
		return "rest_length"
	case ModeImpedance:
		return "impedance"
	case ModeTension:
		return "tension"
	default:
		return "unknown"
	}
}

func ParseMode(name string) (Mode, bool) {
	switch name {
	case "", "rest_length":
		return ModeRestLength, true
	case "impedance":
		return ModeImpedance, true
	case "tension":
		return ModeTension, true
	default:
		return ModeRestLength, false
	}
}

type Gains struct {
	Stiffness float64
	Damping   float64
	Target    float64
}

// Report describes one SetControl call. Clamped is the control range
// warning: the call still succeeded with the offending fields at zero.
type Report struct {
	Requested Gains
	Applied   Gains
	Clamped   bool
	Fields    []string
}

// ClampObserver is notified once per clamped field.
type ClampObserver func(group, field string)

type Group struct {
	name      string
	role      structure.Role
	mode      Mode
	offset    float64
	relative  bool
	actuators []physics.Actuator
	baseRest  []float64

	gains      Gains
	clampCount int
	observer   ClampObserver
	logger     *slog.Logger
}

type Option func(*Group)

func WithMode(mode Mode) Option {
	return func(g *Group) { g.mode = mode }
}

// WithTensionOffset sets the baseline tension added in impedance mode.
func WithTensionOffset(offset float64) Option {
	return func(g *Group) { g.offset = offset }
}

// WithRelativeTarget makes the target a multiple of each cable's rest
// length at group creation instead of an absolute length.
func WithRelativeTarget() Option {
	return func(g *Group) { g.relative = true }
}

func WithClampObserver(observer ClampObserver) Option {
	return func(g *Group) { g.observer = observer }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Group) { g.logger = logger }
}

func NewGroup(name string, role structure.Role, actuators []physics.Actuator, opts ...Option) *Group {
	g := &Group{
		name:      name,
		role:      role,
		actuators: append([]physics.Actuator(nil), actuators...),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.baseRest = make([]float64, len(g.actuators))
	for i, a := range g.actuators {
		g.baseRest[i] = a.RestLength()
	}
	g.logger = logging.OrNop(g.logger)
	return g
}

func (g *Group) Name() string         { return g.name }
func (g *Group) Role() structure.Role { return g.role }
func (g *Group) Mode() Mode           { return g.mode }
func (g *Group) Relative() bool       { return g.relative }
func (g *Group) Len() int             { return len(g.actuators) }

func (g *Group) Actuators() []physics.Actuator {
	return append([]physics.Actuator(nil), g.actuators...)
}

// State returns the stored gains after clamping.
func (g *Group) State() Gains {
	return g.gains
}

// ClampCount is the number of SetControl calls that clamped a field.
func (g *Group) ClampCount() int {
	return g.clampCount
}

// SetControl stores new gains. Negative or NaN stiffness and damping are
// clamped to zero, reported and counted; they never fail the call.
func (g *Group) SetControl(stiffness, damping, target float64) Report {
	requested := Gains{Stiffness: stiffness, Damping: damping, Target: target}
	report := Report{Requested: requested, Applied: requested}

	if !(stiffness >= 0) {
		report.Applied.Stiffness = 0
		report.Fields = append(report.Fields, "stiffness")
	}
	if !(damping >= 0) {
		report.Applied.Damping = 0
		report.Fields = append(report.Fields, "damping")
	}
	if len(report.Fields) > 0 {
		report.Clamped = true
		g.clampCount++
		for _, field := range report.Fields {
			if g.observer != nil {
				g.observer(g.name, field)
			}
		}
		g.logger.Warn("control gains clamped",
			"group", g.name,
			"fields", report.Fields,
			"stiffness", stiffness,
			"damping", damping,
		)
	}
	g.gains = report.Applied
	return report
}

// Apply writes the stored gains into every member actuator.
func (g *Group) Apply() {
	for i, a := range g.actuators {
		switch g.mode {
		case ModeImpedance:
			tension := Controller{
				Offset:            g.offset,
				LengthStiffness:   g.gains.Stiffness,
				VelocityStiffness: g.gains.Damping,
			}.Tension(a.Length(), g.targetLength(i), a.Velocity())
			a.SetRestLength(restForTension(a, tension))
		case ModeTension:
			a.SetStiffness(g.gains.Stiffness)
			a.SetDamping(g.gains.Damping)
			a.SetRestLength(restForTension(a, math.Max(0, g.gains.Target)))
		default:
			a.SetStiffness(g.gains.Stiffness)
			a.SetDamping(g.gains.Damping)
			a.SetRestLength(g.targetLength(i))
		}
	}
}

func (g *Group) targetLength(i int) float64 {
	if g.relative {
		return g.gains.Target * g.baseRest[i]
	}
	return g.gains.Target
}

// restForTension picks the rest length at which the cable's own spring
// produces tension at its current length.
func restForTension(a physics.Actuator, tension float64) float64 {
	k := a.Stiffness()
	if k <= 0 {
		return a.Length()
	}
	return a.Length() - tension/k
}

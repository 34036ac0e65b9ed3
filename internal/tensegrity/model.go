// Package tensegrity runs one robot instance through its lifecycle:
// Setup builds the structure into a physics world, Step drives the attached
// controllers and child models once per physics frame, and Teardown
// releases everything again so the same model can be set up for another
// trial.
package tensegrity

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"tensegrity/internal/assembly"
	"tensegrity/internal/cpgconfig"
	"tensegrity/internal/impedance"
	"tensegrity/internal/logging"
	"tensegrity/internal/metrics"
	"tensegrity/internal/physics"
	"tensegrity/internal/structure"
)

var (
	ErrLifecycle       = errors.New("lifecycle violation")
	ErrInvalidTimestep = errors.New("timestep must be > 0")
	ErrNilWorld        = errors.New("physics world is required")
)

type State int

const (
	Unbuilt State = iota
	Built
	Stepping
)

func (s State) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case Built:
		return "built"
	case Stepping:
		return "stepping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SpecFunc produces the structure a model assembles. It is called on every
// Setup and must return the same spec for the same construction parameters.
type SpecFunc func() (structure.Spec, error)

// StaticSpec wraps a fixed spec.
func StaticSpec(spec structure.Spec) SpecFunc {
	return func() (structure.Spec, error) {
		return spec.Clone(), nil
	}
}

// Controller receives lifecycle notifications. The model references its
// controllers while running and closes those implementing Close() error
// when the model itself is closed.
type Controller interface {
	OnSetup(m *Model) error
	OnStep(m *Model, dt float64) error
	OnTeardown(m *Model)
}

// RenderSink is implemented by whatever draws or records a model.
type RenderSink interface {
	RenderModel(m *Model)
}

type Option func(*Model)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

func WithMetrics(reg *metrics.Registry) Option {
	return func(m *Model) { m.metrics = reg }
}

func WithControllers(controllers ...Controller) Option {
	return func(m *Model) { m.controllers = append(m.controllers, controllers...) }
}

func WithChildren(children ...*Model) Option {
	return func(m *Model) { m.children = append(m.children, children...) }
}

// WithGroupOptions applies opts to every muscle group created at Setup.
func WithGroupOptions(opts ...impedance.Option) Option {
	return func(m *Model) { m.groupOpts = append(m.groupOpts, opts...) }
}

type Model struct {
	name        string
	specFn      SpecFunc
	controllers []Controller
	children    []*Model
	groupOpts   []impedance.Option
	logger      *slog.Logger
	metrics     *metrics.Registry

	state     State
	closed    bool
	structure *assembly.Structure
	groups    []*impedance.Group
	byName    map[string]*impedance.Group
	steps     int
}

func New(name string, spec SpecFunc, opts ...Option) *Model {
	m := &Model{name: name, specFn: spec}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger).With("model", name)
	return m
}

func (m *Model) Name() string { return m.name }
func (m *Model) State() State { return m.state }

// Steps counts successful Step calls since the last Setup.
func (m *Model) Steps() int { return m.steps }

// Attach appends a controller. Controllers can only change while unbuilt.
func (m *Model) Attach(c Controller) error {
	if c == nil {
		return errors.New("controller is required")
	}
	if m.closed || m.state != Unbuilt {
		return fmt.Errorf("%w: attach controller while %s", ErrLifecycle, m.state)
	}
	m.controllers = append(m.controllers, c)
	return nil
}

func (m *Model) Controllers() []Controller {
	return append([]Controller(nil), m.controllers...)
}

// AddChild nests child under m. Children are set up after, stepped after,
// and torn down after their parent.
func (m *Model) AddChild(child *Model) error {
	if child == nil || child == m {
		return errors.New("invalid child model")
	}
	if m.closed || m.state != Unbuilt {
		return fmt.Errorf("%w: add child while %s", ErrLifecycle, m.state)
	}
	m.children = append(m.children, child)
	return nil
}

func (m *Model) Children() []*Model {
	return append([]*Model(nil), m.children...)
}

// Setup assembles the structure, creates one muscle group per control
// channel, notifies controllers in attach order and sets up children. Any
// failure releases everything built so far and leaves the model unbuilt.
func (m *Model) Setup(world physics.World) error {
	if m.closed {
		return fmt.Errorf("%w: setup after close", ErrLifecycle)
	}
	if m.state != Unbuilt {
		return fmt.Errorf("%w: setup while %s", ErrLifecycle, m.state)
	}
	if world == nil {
		return ErrNilWorld
	}

	spec, err := m.specFn()
	if err != nil {
		m.recordSetupFailure("spec")
		return fmt.Errorf("model %s spec: %w", m.name, err)
	}
	st, err := assembly.Build(spec, world)
	if err != nil {
		m.recordSetupFailure("structural")
		return fmt.Errorf("model %s: %w", m.name, err)
	}
	m.structure = st
	m.buildGroups()
	m.state = Built
	m.steps = 0

	for i, c := range m.controllers {
		if err := c.OnSetup(m); err != nil {
			if errors.Is(err, cpgconfig.ErrConfigMismatch) {
				m.recordSetupFailure("config_mismatch")
			} else {
				m.recordSetupFailure("controller")
			}
			m.unwind(m.controllers[:i], nil)
			return fmt.Errorf("model %s controller %d setup: %w", m.name, i, err)
		}
	}
	for i, child := range m.children {
		if err := child.Setup(world); err != nil {
			m.recordSetupFailure("child")
			m.unwind(m.controllers, m.children[:i])
			return fmt.Errorf("model %s child %s: %w", m.name, child.Name(), err)
		}
	}

	m.logger.Info("model built",
		"nodes", len(st.Points),
		"rods", len(st.Rods),
		"muscles", len(st.Muscles),
		"groups", len(m.groups),
		"children", len(m.children),
	)
	return nil
}

func (m *Model) buildGroups() {
	specGroups := structure.Groups(m.structure.Spec)
	m.groups = make([]*impedance.Group, 0, len(specGroups))
	m.byName = make(map[string]*impedance.Group, len(specGroups))
	for _, sg := range specGroups {
		acts := make([]physics.Actuator, 0, len(sg.Muscles))
		for _, idx := range sg.Muscles {
			acts = append(acts, m.structure.Muscles[idx].Actuator)
		}
		opts := append([]impedance.Option{impedance.WithLogger(m.logger)}, m.groupOpts...)
		if m.metrics != nil {
			opts = append(opts, impedance.WithClampObserver(m.metrics.RecordClamp))
		}
		g := impedance.NewGroup(sg.Name, sg.Role, acts, opts...)
		m.groups = append(m.groups, g)
		m.byName[sg.Name] = g
	}
}

// unwind reverses a partial Setup.
func (m *Model) unwind(notified []Controller, children []*Model) {
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Teardown(); err != nil {
			m.logger.Error("rollback child teardown", "child", children[i].Name(), "error", err)
		}
	}
	for i := len(notified) - 1; i >= 0; i-- {
		notified[i].OnTeardown(m)
	}
	if err := m.release(); err != nil {
		m.logger.Error("rollback release", "error", err)
	}
}

func (m *Model) release() error {
	var err error
	if m.structure != nil {
		err = m.structure.Release()
	}
	m.structure = nil
	m.groups = nil
	m.byName = nil
	m.state = Unbuilt
	return err
}

// Step advances one control tick: controllers first, in attach order, then
// children depth first. A rejected dt leaves every phase and actuator
// untouched.
func (m *Model) Step(dt float64) error {
	if m.state != Built && m.state != Stepping {
		return fmt.Errorf("%w: step while %s", ErrLifecycle, m.state)
	}
	if !(dt > 0) || math.IsInf(dt, 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidTimestep, dt)
	}
	for i, c := range m.controllers {
		if err := c.OnStep(m, dt); err != nil {
			return fmt.Errorf("model %s controller %d step: %w", m.name, i, err)
		}
	}
	for _, child := range m.children {
		if err := child.Step(dt); err != nil {
			return fmt.Errorf("model %s child %s: %w", m.name, child.Name(), err)
		}
	}
	m.state = Stepping
	m.steps++
	return nil
}

// Teardown notifies controllers, releases the structure and tears down
// children. It is a no-op on an unbuilt model.
func (m *Model) Teardown() error {
	if m.state == Unbuilt {
		return nil
	}
	for _, c := range m.controllers {
		c.OnTeardown(m)
	}
	var errs []error
	if err := m.release(); err != nil {
		errs = append(errs, fmt.Errorf("model %s release: %w", m.name, err))
	}
	for _, child := range m.children {
		if err := child.Teardown(); err != nil {
			errs = append(errs, err)
		}
	}
	m.logger.Debug("model torn down", "steps", m.steps)
	return errors.Join(errs...)
}

// Close tears the model down if needed, then closes its controllers and
// children. A closed model cannot be set up again.
func (m *Model) Close() error {
	if m.closed {
		return nil
	}
	var errs []error
	if err := m.Teardown(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range m.controllers {
		if closer, ok := c.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, child := range m.children {
		if err := child.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closed = true
	return errors.Join(errs...)
}

func (m *Model) recordSetupFailure(kind string) {
	if m.metrics != nil {
		m.metrics.RecordSetupFailure(kind)
	}
	m.logger.Warn("model setup failed", "kind", kind)
}

// Render hands the model, then each child, to sink.
func (m *Model) Render(sink RenderSink) {
	if sink == nil {
		return
	}
	sink.RenderModel(m)
	for _, child := range m.children {
		child.Render(sink)
	}
}

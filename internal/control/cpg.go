// Package control holds the controllers that drive a tensegrity.Model.
package control

import (
	"errors"
	"fmt"
	"log/slog"

	"tensegrity/internal/cpg"
	"tensegrity/internal/cpgconfig"
	"tensegrity/internal/impedance"
	"tensegrity/internal/logging"
	"tensegrity/internal/metrics"
	"tensegrity/internal/physics"
	"tensegrity/internal/structure"
	"tensegrity/internal/tensegrity"
)

var ErrNotSetUp = errors.New("controller is not set up")

// CPGConfig tunes how oscillator outputs become group gains. Zero base
// gains mean each group keeps the mean stiffness or damping its cables had
// at setup.
type CPGConfig struct {
	BaseStiffness float64
	BaseDamping   float64
	// DriveRoles selects the groups that get an oscillator. Empty drives
	// every group.
	DriveRoles []structure.Role
}

// CPGController maps a learned parameter set onto the model's muscle
// groups at setup and ticks the resulting network once per step.
type CPGController struct {
	cfg     CPGConfig
	params  cpgconfig.ParamSet
	logger  *slog.Logger
	metrics *metrics.Registry

	layout  cpgconfig.Layout
	mapped  cpgconfig.Config
	network *cpg.Network
	groups  []*impedance.Group
	targets []float64
	baseK   []float64
	baseC   []float64
}

type CPGOption func(*CPGController)

func WithCPGLogger(logger *slog.Logger) CPGOption {
	return func(c *CPGController) { c.logger = logger }
}

func WithCPGMetrics(reg *metrics.Registry) CPGOption {
	return func(c *CPGController) { c.metrics = reg }
}

func NewCPGController(params cpgconfig.ParamSet, cfg CPGConfig, opts ...CPGOption) *CPGController {
	c := &CPGController{
		cfg:    cfg,
		params: params.Clone(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)
	return c
}

// LayoutFor returns the oscillator layout this controller would use on m.
func (c *CPGController) LayoutFor(m *tensegrity.Model) (cpgconfig.Layout, error) {
	return cpgconfig.LayoutFor(m.StructureGroups(), c.cfg.DriveRoles...)
}

func (c *CPGController) OnSetup(m *tensegrity.Model) error {
	layout, err := c.LayoutFor(m)
	if err != nil {
		return err
	}
	mapped, err := c.params.Map(layout)
	if err != nil {
		return err
	}
	network, err := cpg.NewNetwork(mapped.Oscillators, mapped.Edges)
	if err != nil {
		return fmt.Errorf("build cpg network: %w", err)
	}

	n := layout.Oscillators()
	groups := make([]*impedance.Group, n)
	targets := make([]float64, n)
	baseK := make([]float64, n)
	baseC := make([]float64, n)
	for i, slot := range layout.Groups {
		g, ok := m.Group(slot.Name)
		if !ok {
			return fmt.Errorf("%w: model has no group %q", cpgconfig.ErrConfigMismatch, slot.Name)
		}
		groups[i] = g
		baseK[i], baseC[i] = c.baseGains(g.Actuators())
		gains := mapped.Groups[i]
		idx := i
		if err := network.Bind(i, func(v float64) { targets[idx] = v }, gains.TargetScale, gains.TargetOffset); err != nil {
			return err
		}
	}

	c.layout = layout
	c.mapped = mapped
	c.network = network
	c.groups = groups
	c.targets = targets
	c.baseK = baseK
	c.baseC = baseC
	c.logger.Debug("cpg controller ready",
		"model", m.Name(),
		"oscillators", n,
		"edges", len(mapped.Edges),
	)
	return nil
}

func (c *CPGController) baseGains(acts []physics.Actuator) (float64, float64) {
	k, d := c.cfg.BaseStiffness, c.cfg.BaseDamping
	if len(acts) == 0 {
		return k, d
	}
	var sumK, sumD float64
	for _, a := range acts {
		sumK += a.Stiffness()
		sumD += a.Damping()
	}
	if k <= 0 {
		k = sumK / float64(len(acts))
	}
	if d <= 0 {
		d = sumD / float64(len(acts))
	}
	return k, d
}

// OnStep ticks the network, forwards each output as its group's target
// and writes the gains into the cables.
func (c *CPGController) OnStep(m *tensegrity.Model, dt float64) error {
	if c.network == nil {
		return ErrNotSetUp
	}
	if err := c.network.Tick(dt); err != nil {
		return err
	}
	c.network.Emit()
	for i, g := range c.groups {
		gains := c.mapped.Groups[i]
		g.SetControl(c.baseK[i]*gains.StiffnessScale, c.baseC[i]*gains.DampingScale, c.targets[i])
		g.Apply()
	}
	if c.metrics != nil {
		c.metrics.RecordTick()
	}
	return nil
}

func (c *CPGController) OnTeardown(m *tensegrity.Model) {
	c.network = nil
	c.groups = nil
	c.targets = nil
	c.baseK = nil
	c.baseC = nil
}

// Network is the running network, nil outside a setup.
func (c *CPGController) Network() *cpg.Network {
	return c.network
}

func (c *CPGController) Layout() cpgconfig.Layout {
	return c.layout
}

// Targets returns the last targets written to each group, in layout order.
func (c *CPGController) Targets() []float64 {
	return append([]float64(nil), c.targets...)
}

func (c *CPGController) Params() cpgconfig.ParamSet {
	return c.params.Clone()
}

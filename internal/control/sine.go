package control

import (
	"math"

	"tensegrity/internal/physics"
	"tensegrity/internal/tensegrity"
)

// SineWaveConfig drives every active cable open loop:
//
//	rest = base * (Offset + Amplitude*sin(2*pi*Frequency*t + i*PhaseStep))
//
// where base is the cable's rest length at setup and i its index among the
// active cables.
type SineWaveConfig struct {
	Amplitude float64
	Frequency float64
	Offset    float64
	PhaseStep float64
}

func DefaultSineWaveConfig() SineWaveConfig {
	return SineWaveConfig{
		Amplitude: 0.15,
		Frequency: 1,
		Offset:    0.85,
		PhaseStep: math.Pi / 4,
	}
}

type SineWaveController struct {
	cfg     SineWaveConfig
	cables  []physics.Actuator
	base    []float64
	elapsed float64
	ready   bool
}

func NewSineWaveController(cfg SineWaveConfig) *SineWaveController {
	return &SineWaveController{cfg: cfg}
}

func (c *SineWaveController) OnSetup(m *tensegrity.Model) error {
	c.cables = m.ActiveMuscles()
	c.base = make([]float64, len(c.cables))
	for i, a := range c.cables {
		c.base[i] = a.RestLength()
	}
	c.elapsed = 0
	c.ready = true
	return nil
}

func (c *SineWaveController) OnStep(_ *tensegrity.Model, dt float64) error {
	if !c.ready {
		return ErrNotSetUp
	}
	c.elapsed += dt
	for i, a := range c.cables {
		phase := 2*math.Pi*c.cfg.Frequency*c.elapsed + float64(i)*c.cfg.PhaseStep
		a.SetRestLength(c.base[i] * (c.cfg.Offset + c.cfg.Amplitude*math.Sin(phase)))
	}
	return nil
}

func (c *SineWaveController) OnTeardown(m *tensegrity.Model) {
	c.cables = nil
	c.base = nil
	c.ready = false
}

func (c *SineWaveController) Elapsed() float64 {
	return c.elapsed
}

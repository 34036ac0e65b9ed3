package impedance

import "math"

// Controller maps a length setpoint to a commanded cable tension:
//
//	tension = Offset + LengthStiffness*(length-target) + VelocityStiffness*velocity
//
// Cables cannot push, so the result is never negative.
type Controller struct {
	Offset            float64
	LengthStiffness   float64
	VelocityStiffness float64
}

func (c Controller) Tension(length, target, velocity float64) float64 {
	t := c.Offset + c.LengthStiffness*(length-target) + c.VelocityStiffness*velocity
	return math.Max(0, t)
}

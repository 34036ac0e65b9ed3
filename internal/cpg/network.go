// Package cpg implements a bank of phase-coupled oscillators integrated with
// fixed-step forward Euler.
package cpg

import (
	"errors"
	"fmt"
	"math"
)

const TwoPi = 2 * math.Pi

var (
	ErrInvalidTimestep = errors.New("timestep must be > 0")
	ErrInvalidEdge     = errors.New("coupling edge references unknown oscillator")
	ErrInvalidBinding  = errors.New("binding references unknown oscillator")
)

// Oscillator emits Bias + Amplitude*sin(Phase). Frequency is angular (rad/s).
type Oscillator struct {
	Phase     float64
	Frequency float64
	Amplitude float64
	Bias      float64
}

func (o Oscillator) Output() float64 {
	return o.Bias + o.Amplitude*math.Sin(o.Phase)
}

// CouplingEdge pulls To's phase toward From's with the given weight.
type CouplingEdge struct {
	From   int
	To     int
	Weight float64
}

// Sink receives one oscillator's mapped output each Emit.
type Sink func(value float64)

type binding struct {
	sink   Sink
	scale  float64
	offset float64
}

type Network struct {
	oscillators []Oscillator
	edges       []CouplingEdge
	incoming    [][]int
	bindings    []binding
	next        []float64
	ticks       int
}

func NewNetwork(oscillators []Oscillator, edges []CouplingEdge) (*Network, error) {
	n := len(oscillators)
	incoming := make([][]int, n)
	for i, e := range edges {
		if e.From < 0 || e.From >= n || e.To < 0 || e.To >= n {
			return nil, fmt.Errorf("%w: edge %d (%d -> %d) with %d oscillators", ErrInvalidEdge, i, e.From, e.To, n)
		}
		incoming[e.To] = append(incoming[e.To], i)
	}
	oscs := append([]Oscillator(nil), oscillators...)
	for i := range oscs {
		oscs[i].Phase = WrapPhase(oscs[i].Phase)
	}
	return &Network{
		oscillators: oscs,
		edges:       append([]CouplingEdge(nil), edges...),
		incoming:    incoming,
		bindings:    make([]binding, n),
		next:        make([]float64, n),
	}, nil
}

func (n *Network) Len() int {
	return len(n.oscillators)
}

func (n *Network) Ticks() int {
	return n.ticks
}

// Tick advances every phase by one forward-Euler step. All coupling terms
// read the phases from before the tick, so the result does not depend on
// oscillator order. A non-positive dt is rejected without touching state.
func (n *Network) Tick(dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidTimestep, dt)
	}
	for i, o := range n.oscillators {
		rate := o.Frequency
		for _, edgeIdx := range n.incoming[i] {
			e := n.edges[edgeIdx]
			rate += e.Weight * math.Sin(n.oscillators[e.From].Phase-o.Phase)
		}
		n.next[i] = WrapPhase(o.Phase + rate*dt)
	}
	for i := range n.oscillators {
		n.oscillators[i].Phase = n.next[i]
	}
	n.ticks++
	return nil
}

// Outputs returns Bias + Amplitude*sin(Phase) per oscillator.
func (n *Network) Outputs() []float64 {
	out := make([]float64, len(n.oscillators))
	for i, o := range n.oscillators {
		out[i] = o.Output()
	}
	return out
}

func (n *Network) Phases() []float64 {
	out := make([]float64, len(n.oscillators))
	for i, o := range n.oscillators {
		out[i] = o.Phase
	}
	return out
}

func (n *Network) Oscillators() []Oscillator {
	return append([]Oscillator(nil), n.oscillators...)
}

func (n *Network) Edges() []CouplingEdge {
	return append([]CouplingEdge(nil), n.edges...)
}

// Bind routes oscillator i to sink as scale*output + offset.
func (n *Network) Bind(i int, sink Sink, scale, offset float64) error {
	if i < 0 || i >= len(n.oscillators) {
		return fmt.Errorf("%w: %d", ErrInvalidBinding, i)
	}
	n.bindings[i] = binding{sink: sink, scale: scale, offset: offset}
	return nil
}

// Emit forwards every bound oscillator's current output.
func (n *Network) Emit() {
	for i, b := range n.bindings {
		if b.sink == nil {
			continue
		}
		b.sink(b.scale*n.oscillators[i].Output() + b.offset)
	}
}

// WrapPhase maps any finite phase into [0, 2π).
func WrapPhase(p float64) float64 {
	p = math.Mod(p, TwoPi)
	if p < 0 {
		p += TwoPi
	}
	if p >= TwoPi {
		p = 0
	}
	return p
}

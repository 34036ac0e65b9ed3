// Package cpgconfig maps learned parameter arrays onto a CPG network layout.
//
// Node parameters are addressed [oscillator][NodeParam]. Edge parameters are
// addressed [source][target][role][EdgeParam], with role slot 0 for active
// groups and 1 for passive ones. A coupling weight is read from the target
// group's role slot. The self edge [i][i][role(i)] carries group i's
// stiffness and damping scales.
package cpgconfig

import (
	"fmt"

	"tensegrity/internal/structure"
)

type NodeParam int

const (
	Frequency NodeParam = iota
	Amplitude
	Bias
	PhaseOffset
	TargetScale
	TargetOffset
	// NodeParamCount is the required length of every node row.
	NodeParamCount int = iota
)

func (p NodeParam) String() string {
	switch p {
	case Frequency:
		return "frequency"
	case Amplitude:
		return "amplitude"
	case Bias:
		return "bias"
	case PhaseOffset:
		return "phase_offset"
	case TargetScale:
		return "target_scale"
	case TargetOffset:
		return "target_offset"
	default:
		return fmt.Sprintf("node_param(%d)", int(p))
	}
}

type EdgeParam int

const (
	CouplingWeight EdgeParam = iota
	StiffnessScale
	DampingScale
	EdgeParamCount int = iota
)

func (p EdgeParam) String() string {
	switch p {
	case CouplingWeight:
		return "coupling_weight"
	case StiffnessScale:
		return "stiffness_scale"
	case DampingScale:
		return "damping_scale"
	default:
		return fmt.Sprintf("edge_param(%d)", int(p))
	}
}

const (
	ActiveSlot  = 0
	PassiveSlot = 1
	RoleCount   = 2
)

// RoleSlot returns the edge array role index for role.
func RoleSlot(role structure.Role) (int, bool) {
	switch role {
	case structure.RoleActive:
		return ActiveSlot, true
	case structure.RolePassive:
		return PassiveSlot, true
	default:
		return 0, false
	}
}

type NodeParams [][]float64

func (n NodeParams) At(osc int, p NodeParam) float64 {
	return n[osc][p]
}

func (n NodeParams) Set(osc int, p NodeParam, v float64) {
	n[osc][p] = v
}

func (n NodeParams) Clone() NodeParams {
	if n == nil {
		return nil
	}
	out := make(NodeParams, len(n))
	for i, row := range n {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

type EdgeParams [][][][]float64

func (e EdgeParams) At(src, dst, role int, p EdgeParam) float64 {
	return e[src][dst][role][p]
}

func (e EdgeParams) Set(src, dst, role int, p EdgeParam, v float64) {
	e[src][dst][role][p] = v
}

func (e EdgeParams) Clone() EdgeParams {
	if e == nil {
		return nil
	}
	out := make(EdgeParams, len(e))
	for i, plane := range e {
		out[i] = make([][][]float64, len(plane))
		for j, roles := range plane {
			out[i][j] = make([][]float64, len(roles))
			for r, vals := range roles {
				out[i][j][r] = append([]float64(nil), vals...)
			}
		}
	}
	return out
}

// NewNodeParams allocates a zeroed array for n oscillators.
func NewNodeParams(n int) NodeParams {
	out := make(NodeParams, n)
	for i := range out {
		out[i] = make([]float64, NodeParamCount)
	}
	return out
}

// NewEdgeParams allocates a zeroed array for n oscillators.
func NewEdgeParams(n int) EdgeParams {
	out := make(EdgeParams, n)
	for i := range out {
		out[i] = make([][][]float64, n)
		for j := range out[i] {
			out[i][j] = make([][]float64, RoleCount)
			for r := range out[i][j] {
				out[i][j][r] = make([]float64, EdgeParamCount)
			}
		}
	}
	return out
}

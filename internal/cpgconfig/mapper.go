package cpgconfig

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"tensegrity/internal/cpg"
	"tensegrity/internal/structure"
)

var (
	ErrConfigMismatch = errors.New("cpg parameter shape mismatch")
	ErrInvalidValue   = errors.New("cpg parameter is not finite")
	ErrInvalidLayout  = errors.New("invalid cpg layout")
)

// MismatchError reports the first array axis whose length disagrees with
// the layout derived from the assembled structure.
type MismatchError struct {
	Array string
	Axis  string
	Index []int
	Want  int
	Got   int
}

func (e *MismatchError) Error() string {
	where := e.Array
	for _, i := range e.Index {
		where += fmt.Sprintf("[%d]", i)
	}
	return fmt.Sprintf("%s: %s axis of %s has length %d, want %d", ErrConfigMismatch, e.Axis, where, e.Got, e.Want)
}

func (e *MismatchError) Unwrap() error {
	return ErrConfigMismatch
}

// GroupSlot is one CPG-driven muscle group.
type GroupSlot struct {
	Name string
	Role structure.Role
}

// Layout assigns one oscillator per driven group, ordered by group name.
type Layout struct {
	Groups []GroupSlot
}

func NewLayout(groups []GroupSlot) (Layout, error) {
	out := append([]GroupSlot(nil), groups...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	for i, g := range out {
		if _, ok := RoleSlot(g.Role); !ok {
			return Layout{}, fmt.Errorf("%w: group %q has role %q", ErrInvalidLayout, g.Name, g.Role)
		}
		if i > 0 && out[i-1].Name == g.Name {
			return Layout{}, fmt.Errorf("%w: duplicate group %q", ErrInvalidLayout, g.Name)
		}
	}
	return Layout{Groups: out}, nil
}

// LayoutFor builds a layout from structure groups, keeping those whose role
// is in roles. No roles means every group.
func LayoutFor(groups []structure.Group, roles ...structure.Role) (Layout, error) {
	slots := make([]GroupSlot, 0, len(groups))
	for _, g := range groups {
		if len(roles) > 0 && !containsRole(roles, g.Role) {
			continue
		}
		slots = append(slots, GroupSlot{Name: g.Name, Role: g.Role})
	}
	return NewLayout(slots)
}

func containsRole(roles []structure.Role, role structure.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (l Layout) Oscillators() int {
	return len(l.Groups)
}

func (l Layout) Index(group string) (int, bool) {
	for i, g := range l.Groups {
		if g.Name == group {
			return i, true
		}
	}
	return 0, false
}

func (l Layout) Names() []string {
	out := make([]string, len(l.Groups))
	for i, g := range l.Groups {
		out[i] = g.Name
	}
	return out
}

// Validate checks both arrays against the layout. It never truncates or
// pads.
func Validate(layout Layout, nodes NodeParams, edges EdgeParams) error {
	n := layout.Oscillators()
	if len(nodes) != n {
		return &MismatchError{Array: "nodes", Axis: "oscillator", Want: n, Got: len(nodes)}
	}
	for i, row := range nodes {
		if len(row) != NodeParamCount {
			return &MismatchError{Array: "nodes", Axis: "parameter", Index: []int{i}, Want: NodeParamCount, Got: len(row)}
		}
		for p, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: nodes[%d][%s]", ErrInvalidValue, i, NodeParam(p))
			}
		}
	}
	if len(edges) != n {
		return &MismatchError{Array: "edges", Axis: "source", Want: n, Got: len(edges)}
	}
	for i, plane := range edges {
		if len(plane) != n {
			return &MismatchError{Array: "edges", Axis: "target", Index: []int{i}, Want: n, Got: len(plane)}
		}
		for j, roles := range plane {
			if len(roles) != RoleCount {
				return &MismatchError{Array: "edges", Axis: "role", Index: []int{i, j}, Want: RoleCount, Got: len(roles)}
			}
			for r, vals := range roles {
				if len(vals) != EdgeParamCount {
					return &MismatchError{Array: "edges", Axis: "parameter", Index: []int{i, j, r}, Want: EdgeParamCount, Got: len(vals)}
				}
				for p, v := range vals {
					if math.IsNaN(v) || math.IsInf(v, 0) {
						return fmt.Errorf("%w: edges[%d][%d][%d][%s]", ErrInvalidValue, i, j, r, EdgeParam(p))
					}
				}
			}
		}
	}
	return nil
}

// GroupGains is the per-group part of a mapped configuration.
type GroupGains struct {
	Name           string
	Role           structure.Role
	Oscillator     int
	TargetScale    float64
	TargetOffset   float64
	StiffnessScale float64
	DampingScale   float64
}

// Config is a validated parameter set resolved against a layout.
type Config struct {
	Oscillators []cpg.Oscillator
	Edges       []cpg.CouplingEdge
	Groups      []GroupGains
}

// Map validates the arrays and resolves them into network inputs. Only
// non-zero couplings between distinct oscillators become edges. The input
// arrays are only read.
func Map(layout Layout, nodes NodeParams, edges EdgeParams) (Config, error) {
	if err := Validate(layout, nodes, edges); err != nil {
		return Config{}, err
	}
	n := layout.Oscillators()
	cfg := Config{
		Oscillators: make([]cpg.Oscillator, n),
		Groups:      make([]GroupGains, n),
	}
	for i, g := range layout.Groups {
		row := nodes[i]
		cfg.Oscillators[i] = cpg.Oscillator{
			Phase:     cpg.WrapPhase(row[PhaseOffset]),
			Frequency: row[Frequency],
			Amplitude: row[Amplitude],
			Bias:      row[Bias],
		}
		slot, _ := RoleSlot(g.Role)
		self := edges[i][i][slot]
		cfg.Groups[i] = GroupGains{
			Name:           g.Name,
			Role:           g.Role,
			Oscillator:     i,
			TargetScale:    row[TargetScale],
			TargetOffset:   row[TargetOffset],
			StiffnessScale: self[StiffnessScale],
			DampingScale:   self[DampingScale],
		}
	}
	for src := 0; src < n; src++ {
		for dst := 0; dst < n; dst++ {
			if src == dst {
				continue
			}
			slot, _ := RoleSlot(layout.Groups[dst].Role)
			w := edges[src][dst][slot][CouplingWeight]
			if w == 0 {
				continue
			}
			cfg.Edges = append(cfg.Edges, cpg.CouplingEdge{From: src, To: dst, Weight: w})
		}
	}
	return cfg, nil
}

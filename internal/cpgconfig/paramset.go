package cpgconfig

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"tensegrity/internal/structure"
)

// ParamSet is the serialized form of one learned configuration. Groups
// records the layout order the arrays were produced for; when present it
// must match the layout they are mapped against.
//
// JSON and YAML share the same shape:
//
//	groups: [rod-0, rod-1]
//	nodes:  [[frequency, amplitude, bias, phase_offset, target_scale, target_offset], ...]
//	edges:  [[[[coupling_weight, stiffness_scale, damping_scale], <passive slot>], ...], ...]
type ParamSet struct {
	Groups []string   `json:"groups,omitempty" yaml:"groups,omitempty"`
	Nodes  NodeParams `json:"nodes" yaml:"nodes"`
	Edges  EdgeParams `json:"edges" yaml:"edges"`
}

func (p ParamSet) Clone() ParamSet {
	return ParamSet{
		Groups: append([]string(nil), p.Groups...),
		Nodes:  p.Nodes.Clone(),
		Edges:  p.Edges.Clone(),
	}
}

// Zero returns an all-zero parameter set shaped for layout.
func Zero(layout Layout) ParamSet {
	n := layout.Oscillators()
	return ParamSet{
		Groups: layout.Names(),
		Nodes:  NewNodeParams(n),
		Edges:  NewEdgeParams(n),
	}
}

// Seed returns a runnable starting point for layout: active groups oscillate
// at half a hertz around 90% of their rest length with evenly spread phases,
// passive groups hold their rest length, and every self edge keeps the base
// gains. Targets are meant for groups driven relative to their rest length.
func Seed(layout Layout) ParamSet {
	p := Zero(layout)
	n := layout.Oscillators()
	for i, g := range layout.Groups {
		slot, _ := RoleSlot(g.Role)
		p.Edges.Set(i, i, slot, StiffnessScale, 1)
		p.Edges.Set(i, i, slot, DampingScale, 1)
		p.Nodes.Set(i, TargetScale, 1)
		if g.Role == structure.RolePassive {
			p.Nodes.Set(i, TargetOffset, 1)
			continue
		}
		p.Nodes.Set(i, Frequency, math.Pi)
		p.Nodes.Set(i, Amplitude, 0.1)
		p.Nodes.Set(i, PhaseOffset, 2*math.Pi*float64(i)/float64(n))
		p.Nodes.Set(i, TargetOffset, 0.9)
	}
	return p
}

// Check validates the set against layout, including the recorded group
// order when there is one.
func (p ParamSet) Check(layout Layout) error {
	if len(p.Groups) > 0 {
		names := layout.Names()
		if len(p.Groups) != len(names) {
			return &MismatchError{Array: "groups", Axis: "oscillator", Want: len(names), Got: len(p.Groups)}
		}
		for i := range names {
			if p.Groups[i] != names[i] {
				return fmt.Errorf("%w: groups[%d] is %q, layout has %q", ErrConfigMismatch, i, p.Groups[i], names[i])
			}
		}
	}
	return Validate(layout, p.Nodes, p.Edges)
}

// Map resolves the set against layout.
func (p ParamSet) Map(layout Layout) (Config, error) {
	if err := p.Check(layout); err != nil {
		return Config{}, err
	}
	return Map(layout, p.Nodes, p.Edges)
}

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks JSON for .json files and YAML otherwise.
func FormatForPath(path string) Format {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		return FormatJSON
	}
	return FormatYAML
}

func Decode(data []byte, format Format) (ParamSet, error) {
	var p ParamSet
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &p); err != nil {
			return ParamSet{}, fmt.Errorf("decode param set json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return ParamSet{}, fmt.Errorf("decode param set yaml: %w", err)
		}
	}
	return p, nil
}

func Encode(p ParamSet, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode param set json: %w", err)
		}
		return data, nil
	default:
		data, err := yaml.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode param set yaml: %w", err)
		}
		return data, nil
	}
}

func Load(path string) (ParamSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ParamSet{}, fmt.Errorf("read param set: %w", err)
	}
	return Decode(data, FormatForPath(path))
}

func Save(path string, p ParamSet) error {
	data, err := Encode(p, FormatForPath(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write param set: %w", err)
	}
	return nil
}

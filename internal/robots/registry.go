// Package robots provides the built-in tensegrity robots and a registry to
// look them up by name.
package robots

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"tensegrity/internal/impedance"
	"tensegrity/internal/structure"
	"tensegrity/internal/tensegrity"
)

var (
	ErrRobotExists   = errors.New("robot already registered")
	ErrRobotNotFound = errors.New("robot not found")
	ErrInvalidParams = errors.New("invalid robot parameters")
)

// GroundClearance is the height of the lowest node after Settle.
const GroundClearance = 1.0

// Params are the construction parameters of a robot instance.
type Params struct {
	// Segments is used by segmented robots; zero selects the robot default.
	Segments int
	// Placement is applied after the robot has been settled on the ground.
	Placement structure.Transform
}

type Factory func(Params) (structure.Spec, error)

type Robot struct {
	Name            string
	Description     string
	DefaultSegments int
	Factory         Factory
}

// Spec builds the robot spec, resolving default segments and placing it.
func (r Robot) Spec(p Params) (structure.Spec, error) {
	if p.Segments == 0 {
		p.Segments = r.DefaultSegments
	}
	if p.Segments < 0 {
		return structure.Spec{}, fmt.Errorf("%w: segments=%d", ErrInvalidParams, p.Segments)
	}
	spec, err := r.Factory(p)
	if err != nil {
		return structure.Spec{}, fmt.Errorf("robot %s: %w", r.Name, err)
	}
	return structure.Apply(Settle(spec), p.Placement), nil
}

// SpecFunc binds p for repeated model setups.
func (r Robot) SpecFunc(p Params) tensegrity.SpecFunc {
	return func() (structure.Spec, error) {
		return r.Spec(p)
	}
}

// NewModel builds a model whose muscle groups take targets relative to
// their assembled rest lengths. The spec is checked once up front so a bad
// parameter fails here rather than at Setup.
func (r Robot) NewModel(p Params, opts ...tensegrity.Option) (*tensegrity.Model, error) {
	spec, err := r.Spec(p)
	if err != nil {
		return nil, err
	}
	if err := structure.Validate(spec); err != nil {
		return nil, fmt.Errorf("robot %s: %w", r.Name, err)
	}
	all := append([]tensegrity.Option{tensegrity.WithGroupOptions(impedance.WithRelativeTarget())}, opts...)
	return tensegrity.New(r.Name, r.SpecFunc(p), all...), nil
}

var registry = struct {
	mu sync.RWMutex
	m  map[string]Robot
}{
	m: make(map[string]Robot),
}

func Register(r Robot) error {
	if r.Name == "" {
		return errors.New("robot name is required")
	}
	if r.Factory == nil {
		return errors.New("robot factory is required")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.m[r.Name]; exists {
		return fmt.Errorf("%w: %s", ErrRobotExists, r.Name)
	}
	registry.m[r.Name] = r
	return nil
}

func Resolve(name string) (Robot, error) {
	registry.mu.RLock()
	r, ok := registry.m[name]
	registry.mu.RUnlock()
	if !ok {
		return Robot{}, fmt.Errorf("%w: %s", ErrRobotNotFound, name)
	}
	return r, nil
}

func List() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.m))
	for name := range registry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	for _, r := range []Robot{
		{Name: "t6", Description: "six strut icosahedral superball", Factory: func(Params) (structure.Spec, error) { return T6(), nil }},
		{Name: "prism", Description: "three bar twisted prism", Factory: func(Params) (structure.Spec, error) { return Prism(), nil }},
		{Name: "prism-payload", Description: "prism carrying a suspended inner prism", Factory: func(Params) (structure.Spec, error) { return PrismPayload() }},
		{Name: "spine", Description: "stacked tetrahedral spine", DefaultSegments: 3, Factory: func(p Params) (structure.Spec, error) { return TetraSpine(p.Segments) }},
	} {
		if err := Register(r); err != nil {
			panic(err)
		}
	}
}

// Settle translates spec so its lowest node sits GroundClearance above the
// ground plane.
func Settle(spec structure.Spec) structure.Spec {
	if len(spec.Nodes) == 0 {
		return spec
	}
	low := math.Inf(1)
	for _, n := range spec.Nodes {
		low = math.Min(low, n.Pos.Y)
	}
	return structure.Apply(spec, structure.Translate(r3.Vec{Y: GroundClearance - low}))
}

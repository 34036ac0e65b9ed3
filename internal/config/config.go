// Package config loads simulation settings from YAML or JSON files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"tensegrity/internal/control"
	"tensegrity/internal/impedance"
	"tensegrity/internal/physics"
	"tensegrity/internal/storage"
	"tensegrity/internal/structure"
	"tensegrity/internal/tuning"
)

var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

type Config struct {
	Robot    string  `yaml:"robot" json:"robot" validate:"required"`
	Segments int     `yaml:"segments" json:"segments" validate:"gte=0"`
	Dt       float64 `yaml:"dt" json:"dt" validate:"gt=0,lte=0.1"`
	Ticks    int     `yaml:"ticks" json:"ticks" validate:"gt=0"`
	// Params is an optional CPG parameter set file. Without one the
	// robot's seed parameters are used.
	Params string `yaml:"params" json:"params"`
	// Structure is an optional structure document that replaces Robot.
	Structure string `yaml:"structure" json:"structure"`

	World   WorldConfig   `yaml:"world" json:"world"`
	Control ControlConfig `yaml:"control" json:"control"`
	Tuning  TuningConfig  `yaml:"tuning" json:"tuning"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

type WorldConfig struct {
	Gravity    float64 `yaml:"gravity" json:"gravity" validate:"gte=0"`
	Ground     bool    `yaml:"ground" json:"ground"`
	Friction   float64 `yaml:"friction" json:"friction" validate:"gte=0,lte=1"`
	Iterations int     `yaml:"iterations" json:"iterations" validate:"gt=0"`
	AirDamping float64 `yaml:"air_damping" json:"air_damping" validate:"gte=0"`
}

// ControlConfig tunes the CPG controller. Mode selects how muscle groups
// turn gains into cable commands: rest_length (default), impedance or
// tension.
type ControlConfig struct {
	BaseStiffness float64  `yaml:"base_stiffness" json:"base_stiffness" validate:"gte=0"`
	BaseDamping   float64  `yaml:"base_damping" json:"base_damping" validate:"gte=0"`
	DriveRoles    []string `yaml:"drive_roles" json:"drive_roles" validate:"dive,oneof=active passive"`
	Mode          string   `yaml:"mode" json:"mode" validate:"omitempty,oneof=rest_length impedance tension"`
	TensionOffset float64  `yaml:"tension_offset" json:"tension_offset" validate:"gte=0"`
}

type TuningConfig struct {
	Attempts          int     `yaml:"attempts" json:"attempts" validate:"gte=0"`
	Steps             int     `yaml:"steps" json:"steps" validate:"gt=0"`
	StepSize          float64 `yaml:"step_size" json:"step_size" validate:"gt=0"`
	PerturbationRange float64 `yaml:"perturbation_range" json:"perturbation_range" validate:"gte=0"`
	AnnealingFactor   float64 `yaml:"annealing_factor" json:"annealing_factor" validate:"gte=0"`
	MinImprovement    float64 `yaml:"min_improvement" json:"min_improvement" validate:"gte=0"`
	GoalFitness       float64 `yaml:"goal_fitness" json:"goal_fitness" validate:"gte=0"`
	Selection         string  `yaml:"selection" json:"selection"`
	Seed              int64   `yaml:"seed" json:"seed"`
}

type StoreConfig struct {
	Kind string `yaml:"kind" json:"kind" validate:"oneof=memory sqlite"`
	Path string `yaml:"path" json:"path" validate:"required_if=Kind sqlite"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

type MetricsConfig struct {
	// Addr enables the /metrics endpoint when set, e.g. ":9090".
	Addr string `yaml:"addr" json:"addr" validate:"omitempty,hostname_port"`
}

func Default() Config {
	world := physics.DefaultWorldConfig()
	return Config{
		Robot: "t6",
		Dt:    0.001,
		Ticks: 5000,
		World: WorldConfig{
			Gravity:    world.Gravity,
			Ground:     world.Ground,
			Friction:   world.Friction,
			Iterations: world.Iterations,
			AirDamping: world.AirDamping,
		},
		Tuning: TuningConfig{
			Attempts: 20,
			Steps:    4,
			StepSize: 0.2,
			Seed:     1,
		},
		Store: StoreConfig{Kind: storage.KindMemory},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. Files ending in .json are parsed as
// JSON, anything else as YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, formatValidationError(err))
	}
	return nil
}

func (c Config) PhysicsConfig() physics.WorldConfig {
	return physics.WorldConfig{
		Gravity:    c.World.Gravity,
		Ground:     c.World.Ground,
		Friction:   c.World.Friction,
		Iterations: c.World.Iterations,
		AirDamping: c.World.AirDamping,
	}
}

func (c Config) CPGConfig() control.CPGConfig {
	roles := make([]structure.Role, 0, len(c.Control.DriveRoles))
	for _, r := range c.Control.DriveRoles {
		roles = append(roles, structure.Role(r))
	}
	return control.CPGConfig{
		BaseStiffness: c.Control.BaseStiffness,
		BaseDamping:   c.Control.BaseDamping,
		DriveRoles:    roles,
	}
}

// GroupMode parses the control mode. Empty means rest length control.
func (c Config) GroupMode() (impedance.Mode, error) {
	mode, ok := impedance.ParseMode(c.Control.Mode)
	if !ok {
		return 0, fmt.Errorf("%w: control.mode %q", ErrInvalidConfig, c.Control.Mode)
	}
	return mode, nil
}

// HillClimber builds a tuner from the tuning section. The caller supplies
// the random source so runs stay reproducible.
func (c Config) HillClimber() *tuning.HillClimber {
	return &tuning.HillClimber{
		Steps:              c.Tuning.Steps,
		StepSize:           c.Tuning.StepSize,
		PerturbationRange:  c.Tuning.PerturbationRange,
		AnnealingFactor:    c.Tuning.AnnealingFactor,
		MinImprovement:     c.Tuning.MinImprovement,
		GoalFitness:        c.Tuning.GoalFitness,
		CandidateSelection: c.Tuning.Selection,
	}
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	for _, e := range validationErrs {
		field := e.Namespace()
		switch e.Tag() {
		case "required", "required_if":
			return fmt.Errorf("%s: field is required", field)
		case "gt":
			return fmt.Errorf("%s: must be greater than %s", field, e.Param())
		case "gte":
			return fmt.Errorf("%s: must be at least %s", field, e.Param())
		case "lte":
			return fmt.Errorf("%s: must not exceed %s", field, e.Param())
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, e.Param())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}

// Package trial runs fixed-length evaluation episodes of a robot: one
// setup, a number of model and world steps, then teardown. The fitness of an
// episode is the horizontal distance its center of mass travelled.
package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"tensegrity/internal/control"
	"tensegrity/internal/cpgconfig"
	"tensegrity/internal/impedance"
	"tensegrity/internal/logging"
	"tensegrity/internal/metrics"
	"tensegrity/internal/model"
	"tensegrity/internal/physics"
	"tensegrity/internal/robots"
	"tensegrity/internal/storage"
	"tensegrity/internal/structure"
	"tensegrity/internal/tensegrity"
)

const (
	StatusOK          = "ok"
	StatusSetupFailed = "setup_failed"
	StatusStepFailed  = "step_failed"
	StatusCanceled    = "canceled"
)

var ErrInvalidRunner = errors.New("invalid trial runner")

type WorldFactory func() physics.World

// TickObserver is called after every completed tick.
type TickObserver func(tick int, m *tensegrity.Model)

type Runner struct {
	Robot  robots.Robot
	Params robots.Params
	// NewWorld defaults to a SpringWorld with DefaultWorldConfig.
	NewWorld WorldFactory
	Ticks    int
	Dt       float64
	Control  control.CPGConfig
	Observe  TickObserver
	Logger   *slog.Logger
	Metrics  *metrics.Registry

	// GroupOptions apply to every muscle group after the robot's own, e.g.
	// impedance.WithMode.
	GroupOptions []impedance.Option
}

type Result struct {
	Robot    string
	Status   string
	Fitness  float64
	Ticks    int
	Clamps   int
	StartCOM r3.Vec
	EndCOM   r3.Vec
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Layout is the oscillator layout a CPG parameter set must match for this
// runner's robot and control configuration.
func (r *Runner) Layout() (cpgconfig.Layout, error) {
	spec, err := r.Robot.Spec(r.Params)
	if err != nil {
		return cpgconfig.Layout{}, err
	}
	return cpgconfig.LayoutFor(structure.Groups(spec), r.Control.DriveRoles...)
}

// Evaluate runs one episode driven by a CPG controller built from params.
func (r *Runner) Evaluate(ctx context.Context, params cpgconfig.ParamSet) (Result, error) {
	opts := []control.CPGOption{control.WithCPGLogger(r.Logger)}
	if r.Metrics != nil {
		opts = append(opts, control.WithCPGMetrics(r.Metrics))
	}
	return r.Run(ctx, control.NewCPGController(params, r.Control, opts...))
}

// Run runs one episode with the given controllers attached to a fresh model.
// A failed episode still returns its partial Result alongside the error.
func (r *Runner) Run(ctx context.Context, controllers ...tensegrity.Controller) (Result, error) {
	if err := r.validate(); err != nil {
		return Result{}, err
	}
	logger := logging.OrNop(r.Logger)
	res := Result{Robot: r.Robot.Name, Started: time.Now()}

	opts := []tensegrity.Option{
		tensegrity.WithLogger(logger),
		tensegrity.WithControllers(controllers...),
	}
	if r.Metrics != nil {
		opts = append(opts, tensegrity.WithMetrics(r.Metrics))
	}
	if len(r.GroupOptions) > 0 {
		opts = append(opts, tensegrity.WithGroupOptions(r.GroupOptions...))
	}
	m, err := r.Robot.NewModel(r.Params, opts...)
	if err != nil {
		return r.finish(logger, res, StatusSetupFailed, err)
	}
	world := r.world()
	if err := m.Setup(world); err != nil {
		return r.finish(logger, res, StatusSetupFailed, fmt.Errorf("setup %s: %w", r.Robot.Name, err))
	}

	res.StartCOM = m.CenterOfMass()
	res.EndCOM = res.StartCOM
	status, runErr := r.loop(ctx, m, world, &res)
	res.EndCOM = m.CenterOfMass()
	for _, g := range m.Groups() {
		res.Clamps += g.ClampCount()
	}
	res.Fitness = Displacement(res.StartCOM, res.EndCOM)

	if err := m.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("close %s: %w", r.Robot.Name, err))
	}
	return r.finish(logger, res, status, runErr)
}

func (r *Runner) loop(ctx context.Context, m *tensegrity.Model, world physics.World, res *Result) (string, error) {
	for tick := 0; tick < r.Ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return StatusCanceled, err
		}
		if err := m.Step(r.Dt); err != nil {
			return StatusStepFailed, fmt.Errorf("tick %d: %w", tick, err)
		}
		if err := world.Step(r.Dt); err != nil {
			return StatusStepFailed, fmt.Errorf("tick %d: world: %w", tick, err)
		}
		res.Ticks++
		if r.Observe != nil {
			r.Observe(tick, m)
		}
	}
	return StatusOK, nil
}

func (r *Runner) finish(logger *slog.Logger, res Result, status string, err error) (Result, error) {
	res.Status = status
	res.Err = err
	res.Duration = time.Since(res.Started)
	if r.Metrics != nil {
		r.Metrics.RecordTrial(res.Robot, status, res.Fitness)
	}
	if err != nil {
		logger.Warn("trial failed", "robot", res.Robot, "status", status, "ticks", res.Ticks, "error", err)
		return res, err
	}
	logger.Debug("trial finished",
		"robot", res.Robot,
		"ticks", res.Ticks,
		"fitness", res.Fitness,
		"clamps", res.Clamps,
	)
	return res, nil
}

func (r *Runner) validate() error {
	if r.Robot.Factory == nil {
		return fmt.Errorf("%w: robot is required", ErrInvalidRunner)
	}
	if r.Ticks <= 0 {
		return fmt.Errorf("%w: ticks must be > 0", ErrInvalidRunner)
	}
	if !(r.Dt > 0) || math.IsInf(r.Dt, 0) {
		return fmt.Errorf("%w: dt must be > 0", ErrInvalidRunner)
	}
	return nil
}

func (r *Runner) world() physics.World {
	if r.NewWorld != nil {
		return r.NewWorld()
	}
	return physics.NewSpringWorld(physics.DefaultWorldConfig())
}

// Displacement is the distance between two points projected on the ground
// plane.
func Displacement(from, to r3.Vec) float64 {
	return math.Hypot(to.X-from.X, to.Z-from.Z)
}

// Record converts a result into a storable trial record with a fresh ID.
func (r *Runner) Record(res Result, paramSetID string) model.TrialRecord {
	record := model.TrialRecord{
		VersionedRecord: storage.Stamp(),
		ID:              uuid.NewString(),
		Robot:           res.Robot,
		Segments:        r.Params.Segments,
		ParamSetID:      paramSetID,
		Ticks:           res.Ticks,
		Timestep:        r.Dt,
		Status:          res.Status,
		Fitness:         res.Fitness,
		Clamps:          res.Clamps,
		StartCOM:        vec(res.StartCOM),
		EndCOM:          vec(res.EndCOM),
		StartedAt:       res.Started.UTC(),
		Duration:        res.Duration,
	}
	if res.Err != nil {
		record.Error = res.Err.Error()
	}
	return record
}

func vec(v r3.Vec) model.Vec3 {
	return model.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

package trial

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"tensegrity/internal/control"
	"tensegrity/internal/cpgconfig"
	"tensegrity/internal/impedance"
	"tensegrity/internal/metrics"
	"tensegrity/internal/robots"
	"tensegrity/internal/structure"
	"tensegrity/internal/tensegrity"
)

func prismRunner(t *testing.T, reg *metrics.Registry) *Runner {
	t.Helper()
	robot, err := robots.Resolve("prism")
	require.NoError(t, err)
	return &Runner{Robot: robot, Ticks: 40, Dt: 0.005, Metrics: reg}
}

func seeded(t *testing.T, r *Runner) cpgconfig.ParamSet {
	t.Helper()
	layout, err := r.Layout()
	require.NoError(t, err)
	return cpgconfig.Seed(layout)
}

func trialCount(t *testing.T, reg *metrics.Registry, robot, status string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, reg.TrialsTotal.WithLabelValues(robot, status).Write(&m))
	return m.GetCounter().GetValue()
}

func TestEvaluateRunsFullEpisode(t *testing.T) {
	reg := metrics.NewRegistry()
	r := prismRunner(t, reg)

	res, err := r.Evaluate(context.Background(), seeded(t, r))
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, 40, res.Ticks)
	require.False(t, math.IsNaN(res.Fitness))
	require.GreaterOrEqual(t, res.Fitness, 0.0)
	require.InDelta(t, Displacement(res.StartCOM, res.EndCOM), res.Fitness, 1e-12)
	require.Equal(t, 1.0, trialCount(t, reg, "prism", StatusOK))
}

func TestEvaluateIsDeterministic(t *testing.T) {
	r := prismRunner(t, nil)
	params := seeded(t, r)

	first, err := r.Evaluate(context.Background(), params)
	require.NoError(t, err)
	second, err := r.Evaluate(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, first.Fitness, second.Fitness)
	require.Equal(t, first.EndCOM, second.EndCOM)
}

func TestEvaluateMismatchedParamsFailsSetup(t *testing.T) {
	reg := metrics.NewRegistry()
	r := prismRunner(t, reg)
	layout, err := r.Layout()
	require.NoError(t, err)

	bad := cpgconfig.ParamSet{
		Nodes: cpgconfig.NewNodeParams(layout.Oscillators() + 1),
		Edges: cpgconfig.NewEdgeParams(layout.Oscillators() + 1),
	}
	res, err := r.Evaluate(context.Background(), bad)
	require.ErrorIs(t, err, cpgconfig.ErrConfigMismatch)
	require.Equal(t, StatusSetupFailed, res.Status)
	require.Zero(t, res.Ticks)
	require.Equal(t, 1.0, trialCount(t, reg, "prism", StatusSetupFailed))
}

func TestRunHonorsCancellation(t *testing.T) {
	r := prismRunner(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Run(ctx, control.NewSineWaveController(control.DefaultSineWaveConfig()))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StatusCanceled, res.Status)
	require.Zero(t, res.Ticks)
}

func TestRunObservesEveryTick(t *testing.T) {
	r := prismRunner(t, nil)
	var seen []int
	r.Observe = func(tick int, m *tensegrity.Model) {
		require.Equal(t, tensegrity.Stepping, m.State())
		seen = append(seen, tick)
	}

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, seen, r.Ticks)
	require.Equal(t, r.Ticks-1, seen[len(seen)-1])
}

func TestRunnerValidation(t *testing.T) {
	robot, err := robots.Resolve("prism")
	require.NoError(t, err)

	cases := map[string]Runner{
		"no robot": {Ticks: 1, Dt: 0.01},
		"no ticks": {Robot: robot, Dt: 0.01},
		"zero dt":  {Robot: robot, Ticks: 1},
		"nan dt":   {Robot: robot, Ticks: 1, Dt: math.NaN()},
		"inf dt":   {Robot: robot, Ticks: 1, Dt: math.Inf(1)},
		"negative": {Robot: robot, Ticks: -3, Dt: 0.01},
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Run(context.Background())
			require.ErrorIs(t, err, ErrInvalidRunner)
		})
	}
}

func TestLayoutHonorsDriveRoles(t *testing.T) {
	r := prismRunner(t, nil)
	all, err := r.Layout()
	require.NoError(t, err)

	r.Control.DriveRoles = []structure.Role{structure.RoleActive}
	active, err := r.Layout()
	require.NoError(t, err)
	require.Less(t, active.Oscillators(), all.Oscillators())
}

func TestRecordCarriesResult(t *testing.T) {
	r := prismRunner(t, nil)
	res, err := r.Evaluate(context.Background(), seeded(t, r))
	require.NoError(t, err)

	record := r.Record(res, "ps-1")
	_, err = uuid.Parse(record.ID)
	require.NoError(t, err)
	require.Equal(t, "prism", record.Robot)
	require.Equal(t, "ps-1", record.ParamSetID)
	require.Equal(t, res.Fitness, record.Fitness)
	require.Equal(t, r.Dt, record.Timestep)
	require.Empty(t, record.Error)

	failed := r.Record(Result{Robot: "prism", Status: StatusStepFailed, Err: errors.New("boom")}, "")
	require.Equal(t, "boom", failed.Error)
}

func TestDisplacementIgnoresHeight(t *testing.T) {
	require.InDelta(t, 5.0, Displacement(r3.Vec{X: 0, Y: 3, Z: 0}, r3.Vec{X: 3, Y: -10, Z: 4}), 1e-12)
}

func TestRunAppliesGroupOptions(t *testing.T) {
	r := prismRunner(t, nil)
	r.GroupOptions = []impedance.Option{
		impedance.WithMode(impedance.ModeTension),
		impedance.WithTensionOffset(2),
	}
	modes := map[impedance.Mode]int{}
	r.Observe = func(tick int, m *tensegrity.Model) {
		if tick > 0 {
			return
		}
		for _, g := range m.Groups() {
			modes[g.Mode()]++
		}
	}

	res, err := r.Evaluate(context.Background(), seeded(t, r))
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.False(t, math.IsNaN(res.Fitness))
	require.Equal(t, map[impedance.Mode]int{impedance.ModeTension: 5}, modes)

	tensionEnd := res.EndCOM
	r.GroupOptions = nil
	res, err = r.Evaluate(context.Background(), seeded(t, r))
	require.NoError(t, err)
	require.NotEqual(t, tensionEnd, res.EndCOM)
}

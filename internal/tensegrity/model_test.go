package tensegrity

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"tensegrity/internal/cpgconfig"
	"tensegrity/internal/metrics"
	"tensegrity/internal/physics"
	"tensegrity/internal/structure"
)

func prismSpec(name string) structure.Spec {
	return structure.NewBuilder(name).
		AddNode(0, 0, 0, 0).
		AddNode(1, 10, 0, 0).
		AddNode(2, 0, 0, 10).
		AddNode(3, 0, 10, 0).
		AddNode(4, 10, 10, 0).
		AddNode(5, 0, 10, 10).
		AddRods(
			structure.Rod{From: 0, To: 4, Mass: 1},
			structure.Rod{From: 1, To: 5, Mass: 1},
			structure.Rod{From: 2, To: 3, Mass: 1},
		).
		AddMuscles(
			structure.Muscle{From: 0, To: 1, Role: structure.RolePassive, Stiffness: 10},
			structure.Muscle{From: 1, To: 2, Role: structure.RolePassive, Stiffness: 10},
			structure.Muscle{From: 2, To: 0, Role: structure.RolePassive, Stiffness: 10},
			structure.Muscle{From: 3, To: 4, Role: structure.RoleActive, Stiffness: 40, Group: "top"},
			structure.Muscle{From: 4, To: 5, Role: structure.RoleActive, Stiffness: 40, Group: "top"},
			structure.Muscle{From: 0, To: 3, Role: structure.RoleActive, Stiffness: 40, Group: "vertical"},
		).
		AddMarker(structure.Marker{Rod: 0, Node: 4}).
		AddMarker(structure.Marker{Rod: 2, Node: 2, Offset: r3.Vec{Z: 1}}).
		Spec()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.GetCounter().GetValue()
}

type recorder struct {
	events   []string
	setupErr error
	stepErr  error
	closed   int
}

func (r *recorder) OnSetup(m *Model) error {
	r.events = append(r.events, "setup:"+m.Name())
	return r.setupErr
}

func (r *recorder) OnStep(m *Model, dt float64) error {
	r.events = append(r.events, "step:"+m.Name())
	return r.stepErr
}

func (r *recorder) OnTeardown(m *Model) {
	r.events = append(r.events, "teardown:"+m.Name())
}

func (r *recorder) Close() error {
	r.closed++
	return nil
}

// targetWriter sets every group's target so tests can see whether a step
// reached the actuators.
type targetWriter struct{ target float64 }

func (w *targetWriter) OnSetup(*Model) error { return nil }
func (w *targetWriter) OnTeardown(*Model)    {}
func (w *targetWriter) OnStep(m *Model, dt float64) error {
	w.target += dt
	for _, g := range m.Groups() {
		g.SetControl(1, 0, w.target)
		g.Apply()
	}
	return nil
}

func restLengths(m *Model) []float64 {
	var out []float64
	for _, a := range m.AllMuscles() {
		out = append(out, a.RestLength())
	}
	return out
}

func TestSetupBuildsStructureCounts(t *testing.T) {
	world := physics.NewSpringWorld(physics.DefaultWorldConfig())
	m := New("prism", StaticSpec(prismSpec("prism")))
	require.NoError(t, m.Setup(world))
	require.Equal(t, Built, m.State())

	points, rods, cables := world.Counts()
	require.Equal(t, 6, points)
	require.Equal(t, 3, rods)
	require.Equal(t, 6, cables)
	require.Len(t, m.AllMuscles(), 6)
	require.Len(t, m.ActiveMuscles(), 3)
	require.Len(t, m.PassiveMuscles(), 3)
	require.Len(t, m.MarkerPositions(), 2)
	require.InDelta(t, 4.0, m.MuscleRatio(), 1e-12)

	var names []string
	for _, g := range m.Groups() {
		names = append(names, g.Name())
	}
	require.Equal(t, []string{"passive", "top", "vertical"}, names)
	top, ok := m.Group("top")
	require.True(t, ok)
	require.Equal(t, 2, top.Len())
}

func TestRebuildReproducesAssignment(t *testing.T) {
	world := physics.NewSpringWorld(physics.DefaultWorldConfig())
	m := New("prism", StaticSpec(prismSpec("prism")))

	snapshot := func() (structure.Spec, []structure.Group) {
		spec, ok := m.Spec()
		require.True(t, ok)
		return spec, m.StructureGroups()
	}

	require.NoError(t, m.Setup(world))
	firstSpec, firstGroups := snapshot()
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Step(0.01))
		require.NoError(t, world.Step(0.01))
	}
	require.NoError(t, m.Teardown())
	require.Equal(t, Unbuilt, m.State())
	points, rods, cables := world.Counts()
	require.Zero(t, points+rods+cables)

	require.NoError(t, m.Setup(world))
	secondSpec, secondGroups := snapshot()
	require.Equal(t, firstSpec, secondSpec)
	require.Equal(t, firstGroups, secondGroups)
	require.Zero(t, m.Steps())
}

func TestStepRejectsNonPositiveTimestep(t *testing.T) {
	world := physics.NewSpringWorld(physics.DefaultWorldConfig())
	writer := &targetWriter{}
	m := New("prism", StaticSpec(prismSpec("prism")), WithControllers(writer))
	require.NoError(t, m.Setup(world))
	require.NoError(t, m.Step(0.5))
	before := restLengths(m)

	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		err := m.Step(dt)
		require.ErrorIs(t, err, ErrInvalidTimestep)
	}
	require.Equal(t, before, restLengths(m))
	require.Equal(t, 0.5, writer.target)
	require.Equal(t, 1, m.Steps())
	require.Equal(t, Stepping, m.State())
}

func TestLifecycleViolations(t *testing.T) {
	world := physics.NewSpringWorld(physics.DefaultWorldConfig())
	m := New("prism", StaticSpec(prismSpec("prism")))

	require.ErrorIs(t, m.Step(0.01), ErrLifecycle)
	require.ErrorIs(t, m.Setup(nil), ErrNilWorld)
	require.NoError(t, m.Setup(world))
	require.ErrorIs(t, m.Setup(world), ErrLifecycle)
	require.ErrorIs(t, m.Attach(&recorder{}), ErrLifecycle)
	require.ErrorIs(t, m.AddChild(New("c", StaticSpec(prismSpec("c")))), ErrLifecycle)

	require.NoError(t, m.Teardown())
	require.NoError(t, m.Teardown())
	require.ErrorIs(t, m.Step(0.01), ErrLifecycle)
}

func TestStructuralErrorLeavesModelUnbuilt(t *testing.T) {
	world := physics.NewSpringWorld(physics.DefaultWorldConfig())
	bad := prismSpec("bad")
	bad.Rods[0].To = 99
	reg := metrics.NewRegistry()
	rec := &recorder{}
	m := New("bad", StaticSpec(bad), WithControllers(rec), WithMetrics(reg))

	err := m.Setup(world)
	require.ErrorIs(t, err, structure.ErrStructural)
	require.Equal(t, Unbuilt, m.State())
	require.Empty(t, rec.events)
	points, rods, cables := world.Counts()
	require.Zero(t, points+rods+cables)
	require.Equal(t, 1.0, counterValue(t, reg.SetupFailures.WithLabelValues("structural")))
}

func TestControllerSetupFailureRollsBack(t *testing.T) {
	world := physics.NewSpringWorld(physics.DefaultWorldConfig())
	first := &recorder{}
	failing := &recorder{setupErr: &cpgconfig.MismatchError{Array: "nodes", Axis: "oscillator", Want: 5, Got: 4}}
	reg := metrics.NewRegistry()
	m := New("prism", StaticSpec(prismSpec("prism")), WithControllers(first, failing), WithMetrics(reg))

	err := m.Setup(world)
	require.True(t, errors.Is(err, cpgconfig.ErrConfigMismatch))
	require.Equal(t, Unbuilt, m.State())
	require.Equal(t, []string{"setup:prism", "teardown:prism"}, first.events)
	require.Equal(t, []string{"setup:prism"}, failing.events)
	require.Nil(t, m.AllMuscles())
	points, rods, cables := world.Counts()
	require.Zero(t, points+rods+cables)
	require.Equal(t, 1.0, counterValue(t, reg.SetupFailures.WithLabelValues("config_mismatch")))

	failing.setupErr = nil
	require.NoError(t, m.Setup(world))
}

func TestChildrenFollowParentDepthFirst(t *testing.T) {
	world := physics.NewSpringWorld(physics.DefaultWorldConfig())
	rec := &recorder{}
	leaf := New("leaf", StaticSpec(prismSpec("leaf")), WithControllers(rec))
	mid := New("mid", StaticSpec(prismSpec("mid")), WithControllers(rec), WithChildren(leaf))
	root := New("root", StaticSpec(prismSpec("root")), WithControllers(rec))
	require.NoError(t, root.AddChild(mid))

	require.NoError(t, root.Setup(world))
	require.NoError(t, root.Step(0.01))
	require.NoError(t, root.Teardown())
	require.Equal(t, []string{
		"setup:root", "setup:mid", "setup:leaf",
		"step:root", "step:mid", "step:leaf",
		"teardown:root", "teardown:mid", "teardown:leaf",
	}, rec.events)
	require.Equal(t, Unbuilt, leaf.State())
}

func TestChildSetupFailureUnwindsParent(t *testing.T) {
	world := physics.NewSpringWorld(physics.DefaultWorldConfig())
	bad := prismSpec("bad")
	bad.Muscles[0].To = bad.Muscles[0].From
	good := New("good", StaticSpec(prismSpec("good")))
	root := New("root", StaticSpec(prismSpec("root")), WithChildren(good, New("bad", StaticSpec(bad))))

	err := root.Setup(world)
	require.ErrorIs(t, err, structure.ErrStructural)
	require.Equal(t, Unbuilt, root.State())
	require.Equal(t, Unbuilt, good.State())
	points, rods, cables := world.Counts()
	require.Zero(t, points+rods+cables)
}

func TestCenterOfMassIncludesChildren(t *testing.T) {
	world := physics.NewSpringWorld(physics.WorldConfig{})
	shifted := structure.Apply(prismSpec("child"), structure.Translate(r3.Vec{X: 100}))
	child := New("child", StaticSpec(shifted))
	root := New("root", StaticSpec(prismSpec("root")), WithChildren(child))
	require.NoError(t, root.Setup(world))

	rootOnly := New("solo", StaticSpec(prismSpec("solo")))
	require.NoError(t, rootOnly.Setup(physics.NewSpringWorld(physics.WorldConfig{})))

	com := root.CenterOfMass()
	solo := rootOnly.CenterOfMass()
	require.InDelta(t, solo.X+50, com.X, 1e-9)
	require.InDelta(t, solo.Y, com.Y, 1e-9)
	require.Equal(t, 6.0, root.Mass())
	require.Len(t, root.MarkerPositions(), 4)
}

func TestCloseClosesControllersOnce(t *testing.T) {
	world := physics.NewSpringWorld(physics.DefaultWorldConfig())
	rec := &recorder{}
	m := New("prism", StaticSpec(prismSpec("prism")), WithControllers(rec))
	require.NoError(t, m.Setup(world))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	require.Equal(t, 1, rec.closed)
	require.Equal(t, Unbuilt, m.State())
	require.ErrorIs(t, m.Setup(world), ErrLifecycle)
}

type sinkFunc func(*Model)

func (f sinkFunc) RenderModel(m *Model) { f(m) }

func TestRenderVisitsTree(t *testing.T) {
	child := New("child", StaticSpec(prismSpec("child")))
	root := New("root", StaticSpec(prismSpec("root")), WithChildren(child))
	var seen []string
	root.Render(sinkFunc(func(m *Model) { seen = append(seen, m.Name()) }))
	require.Equal(t, []string{"root", "child"}, seen)
}

func TestClampWarningsReachMetrics(t *testing.T) {
	world := physics.NewSpringWorld(physics.DefaultWorldConfig())
	reg := metrics.NewRegistry()
	m := New("prism", StaticSpec(prismSpec("prism")), WithMetrics(reg))
	require.NoError(t, m.Setup(world))
	top, _ := m.Group("top")
	report := top.SetControl(-1, 0, 5)
	require.True(t, report.Clamped)
	require.Equal(t, 0.0, top.State().Stiffness)
	require.Equal(t, 1.0, counterValue(t, reg.ControlRangeWarnings.WithLabelValues("top", "stiffness")))
}

package tuning

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"tensegrity/internal/cpgconfig"
	"tensegrity/internal/metrics"
	"tensegrity/internal/structure"
)

func testLayout(t *testing.T) cpgconfig.Layout {
	t.Helper()
	layout, err := cpgconfig.NewLayout([]cpgconfig.GroupSlot{
		{Name: "a", Role: structure.RoleActive},
		{Name: "b", Role: structure.RolePassive},
	})
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	return layout
}

// distanceFitness peaks when group a's frequency is 2.
func distanceFitness(_ context.Context, p cpgconfig.ParamSet) (float64, error) {
	delta := p.Nodes[0][cpgconfig.Frequency] - 2
	return 1 - delta*delta, nil
}

func TestHillClimberImprovesFitness(t *testing.T) {
	layout := testLayout(t)
	params := cpgconfig.Zero(layout)
	tuner := &HillClimber{Rand: rand.New(rand.NewSource(1)), Steps: 4, StepSize: 0.5}

	before, _ := distanceFitness(context.Background(), params)
	tuned, report, err := tuner.Tune(context.Background(), layout, params, 200, distanceFitness)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	after, _ := distanceFitness(context.Background(), tuned)
	if after <= before {
		t.Fatalf("expected tuned fitness > baseline: before=%f after=%f", before, after)
	}
	if report.BestFitness != after || report.InitialFitness != before {
		t.Fatalf("unexpected report fitness: %+v", report)
	}
	if len(report.History) != report.AttemptsExecuted+1 {
		t.Fatalf("history length %d, attempts %d", len(report.History), report.AttemptsExecuted)
	}
	for i := 1; i < len(report.History); i++ {
		if report.History[i] < report.History[i-1] {
			t.Fatalf("best fitness decreased at %d: %v", i, report.History)
		}
	}
	if report.AcceptedCandidates+report.RejectedCandidates != report.AttemptsExecuted {
		t.Fatalf("accepted+rejected != executed: %+v", report)
	}
}

func TestHillClimberKeepsShapeAndInput(t *testing.T) {
	layout := testLayout(t)
	params := cpgconfig.Seed(layout)
	snapshot := params.Clone()
	tuner := &HillClimber{Rand: rand.New(rand.NewSource(5)), Steps: 8, StepSize: 1}

	visited := 0
	fitness := func(_ context.Context, p cpgconfig.ParamSet) (float64, error) {
		visited++
		if err := p.Check(layout); err != nil {
			t.Fatalf("candidate lost shape: %v", err)
		}
		for i := range p.Edges {
			slot, _ := cpgconfig.RoleSlot(layout.Groups[i].Role)
			self := p.Edges[i][i][slot]
			if self[cpgconfig.StiffnessScale] < 0 || self[cpgconfig.DampingScale] < 0 {
				t.Fatalf("negative gain scale on group %d: %v", i, self)
			}
		}
		return rand.New(rand.NewSource(int64(visited))).Float64(), nil
	}
	if _, _, err := tuner.Tune(context.Background(), layout, params, 30, fitness); err != nil {
		t.Fatalf("tune: %v", err)
	}
	if params.Nodes[0][0] != snapshot.Nodes[0][0] || params.Edges[0][0][0][1] != snapshot.Edges[0][0][0][1] {
		t.Fatal("tune mutated its input")
	}
}

func TestHillClimberRejectsMismatchedParams(t *testing.T) {
	layout := testLayout(t)
	params := cpgconfig.ParamSet{Nodes: cpgconfig.NewNodeParams(3), Edges: cpgconfig.NewEdgeParams(3)}
	tuner := &HillClimber{Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 1}

	_, _, err := tuner.Tune(context.Background(), layout, params, 1, distanceFitness)
	if !errors.Is(err, cpgconfig.ErrConfigMismatch) {
		t.Fatalf("expected config mismatch, got %v", err)
	}
}

func TestHillClimberInputValidation(t *testing.T) {
	layout := testLayout(t)
	params := cpgconfig.Zero(layout)

	cases := map[string]*HillClimber{
		"rand":        {},
		"steps":       {Rand: rand.New(rand.NewSource(1)), Steps: 0, StepSize: 1},
		"step size":   {Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 0},
		"range":       {Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 1, PerturbationRange: -1},
		"annealing":   {Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 1, AnnealingFactor: -1},
		"improvement": {Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 1, MinImprovement: -0.1},
		"selection":   {Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 1, CandidateSelection: "unknown"},
	}
	for name, tuner := range cases {
		if _, _, err := tuner.Tune(context.Background(), layout, params, 1, distanceFitness); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	tuner := &HillClimber{Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 1}
	if _, _, err := tuner.Tune(context.Background(), layout, params, 1, nil); err == nil {
		t.Fatal("expected fitness validation error")
	}
}

func TestHillClimberMinImprovementBlocksSmallGains(t *testing.T) {
	layout := testLayout(t)
	params := cpgconfig.Zero(layout)
	params.Nodes[0][cpgconfig.Frequency] = 1.9
	tuner := &HillClimber{
		Rand:           rand.New(rand.NewSource(3)),
		Steps:          6,
		StepSize:       0.25,
		MinImprovement: 0.5,
	}

	tuned, report, err := tuner.Tune(context.Background(), layout, params, 40, distanceFitness)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if tuned.Nodes[0][cpgconfig.Frequency] != 1.9 {
		t.Fatalf("expected unchanged frequency, got %f", tuned.Nodes[0][cpgconfig.Frequency])
	}
	if report.AcceptedCandidates != 0 {
		t.Fatalf("expected no accepted candidates, got %d", report.AcceptedCandidates)
	}
}

func TestHillClimberZeroAttemptsEvaluatesOnce(t *testing.T) {
	layout := testLayout(t)
	params := cpgconfig.Seed(layout)
	tuner := &HillClimber{Rand: rand.New(rand.NewSource(1)), Steps: 2, StepSize: 0.5}

	calls := 0
	out, report, err := tuner.Tune(context.Background(), layout, params, 0, func(context.Context, cpgconfig.ParamSet) (float64, error) {
		calls++
		return math.Pi, nil
	})
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if calls != 1 || report.CandidateEvaluations != 1 {
		t.Fatalf("expected a single evaluation, got calls=%d report=%+v", calls, report)
	}
	if out.Nodes[0][0] != params.Nodes[0][0] {
		t.Fatal("params changed unexpectedly")
	}
}

func TestHillClimberStopsAtGoal(t *testing.T) {
	layout := testLayout(t)
	tuner := &HillClimber{Rand: rand.New(rand.NewSource(1)), Steps: 2, StepSize: 0.5, GoalFitness: 0.5}

	_, report, err := tuner.Tune(context.Background(), layout, cpgconfig.Zero(layout), 50, func(context.Context, cpgconfig.ParamSet) (float64, error) {
		return 1, nil
	})
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if !report.GoalReached || report.AttemptsExecuted != 0 {
		t.Fatalf("expected immediate goal, got %+v", report)
	}
}

func TestHillClimberPropagatesFitnessError(t *testing.T) {
	layout := testLayout(t)
	tuner := &HillClimber{Rand: rand.New(rand.NewSource(1)), Steps: 2, StepSize: 0.5}
	boom := errors.New("boom")

	_, _, err := tuner.Tune(context.Background(), layout, cpgconfig.Zero(layout), 5, func(context.Context, cpgconfig.ParamSet) (float64, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fitness error, got %v", err)
	}
}

func TestHillClimberCanceledContext(t *testing.T) {
	layout := testLayout(t)
	tuner := &HillClimber{Rand: rand.New(rand.NewSource(1)), Steps: 2, StepSize: 0.5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := tuner.Tune(ctx, layout, cpgconfig.Zero(layout), 5, distanceFitness); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestHillClimberSelectionModesSupported(t *testing.T) {
	layout := testLayout(t)
	modes := []string{
		CandidateSelectBestSoFar,
		CandidateSelectOriginal,
		CandidateSelectDynamicA,
		CandidateSelectDynamic,
		CandidateSelectRecent,
		CandidateSelectRecentRnd,
		CandidateSelectAll,
		CandidateSelectAllRandom,
	}
	for i, mode := range modes {
		tuner := &HillClimber{
			Rand:               rand.New(rand.NewSource(int64(100 + i))),
			Steps:              3,
			StepSize:           0.15,
			CandidateSelection: mode,
		}
		if _, _, err := tuner.Tune(context.Background(), layout, cpgconfig.Zero(layout), 8, distanceFitness); err != nil {
			t.Fatalf("tune with mode=%s: %v", mode, err)
		}
	}
}

func TestHillClimberRecordsAcceptsInMetrics(t *testing.T) {
	layout := testLayout(t)
	reg := metrics.NewRegistry()
	tuner := &HillClimber{Rand: rand.New(rand.NewSource(1)), Steps: 4, StepSize: 0.5, Metrics: reg}

	_, report, err := tuner.Tune(context.Background(), layout, cpgconfig.Zero(layout), 100, distanceFitness)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	var m dto.Metric
	if err := reg.TuningAccepted.Write(&m); err != nil {
		t.Fatalf("read metric: %v", err)
	}
	if got := int(m.GetCounter().GetValue()); got != report.AcceptedCandidates {
		t.Fatalf("metric accepts=%d report accepts=%d", got, report.AcceptedCandidates)
	}
}

func TestHillClimberConcurrentTuneSafe(t *testing.T) {
	layout := testLayout(t)
	tuner := &HillClimber{Rand: rand.New(rand.NewSource(1)), Steps: 4, StepSize: 0.2}

	var wg sync.WaitGroup
	errCh := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := tuner.Tune(context.Background(), layout, cpgconfig.Zero(layout), 8, distanceFitness); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent tune: %v", err)
	}
}

func TestTunableSlotsCoverMappedEntries(t *testing.T) {
	layout := testLayout(t)
	slots := tunableSlots(layout)
	// 2 groups: 12 node entries, 2 couplings, 2x2 self scales.
	if len(slots) != 12+2+4 {
		t.Fatalf("unexpected slot count %d", len(slots))
	}
	for _, s := range slots {
		if s.edge && s.i != s.j && s.param != int(cpgconfig.CouplingWeight) {
			t.Fatalf("off-diagonal slot is not a coupling weight: %+v", s)
		}
	}
}

package tuning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"tensegrity/internal/cpgconfig"
	"tensegrity/internal/logging"
	"tensegrity/internal/metrics"
)

// HillClimber perturbs a CPG parameter set a few entries at a time and keeps
// candidates that beat the best fitness seen so far. Only entries that reach
// the network are perturbed, so the array shapes never change.
type HillClimber struct {
	Rand               *rand.Rand
	Steps              int
	StepSize           float64
	PerturbationRange  float64
	AnnealingFactor    float64
	MinImprovement     float64
	GoalFitness        float64
	CandidateSelection string
	Logger             *slog.Logger
	Metrics            *metrics.Registry
	mu                 sync.Mutex
}

const (
	CandidateSelectBestSoFar = "best_so_far"
	CandidateSelectOriginal  = "original"
	CandidateSelectDynamicA  = "dynamic"
	CandidateSelectDynamic   = "dynamic_random"
	CandidateSelectRecent    = "recent"
	CandidateSelectRecentRnd = "recent_random"
	CandidateSelectAll       = "all"
	CandidateSelectAllRandom = "all_random"
)

func (h *HillClimber) Name() string {
	return "cpg_hillclimb"
}

func (h *HillClimber) Tune(ctx context.Context, layout cpgconfig.Layout, params cpgconfig.ParamSet, attempts int, fitness FitnessFn) (cpgconfig.ParamSet, TuneReport, error) {
	report := TuneReport{AttemptsPlanned: max(attempts, 0)}
	if err := ctx.Err(); err != nil {
		return cpgconfig.ParamSet{}, report, err
	}
	if err := h.validate(fitness); err != nil {
		return cpgconfig.ParamSet{}, report, err
	}
	if err := params.Check(layout); err != nil {
		return cpgconfig.ParamSet{}, report, err
	}
	logger := logging.OrNop(h.Logger)
	perturbationRange := h.PerturbationRange
	if perturbationRange == 0 {
		perturbationRange = 1.0
	}
	annealingFactor := h.AnnealingFactor
	if annealingFactor == 0 {
		annealingFactor = 1.0
	}

	original := params.Clone()
	best := params.Clone()
	bestFitness, err := fitness(ctx, best)
	if err != nil {
		return cpgconfig.ParamSet{}, report, fmt.Errorf("evaluate initial params: %w", err)
	}
	report.CandidateEvaluations++
	report.InitialFitness = bestFitness
	report.BestFitness = bestFitness
	report.History = append(report.History, bestFitness)
	if h.goalReached(bestFitness) {
		report.GoalReached = true
		return best, report, nil
	}

	slots := tunableSlots(layout)
	if attempts <= 0 || len(slots) == 0 {
		return best, report, nil
	}
	recent := best.Clone()

	for a := 0; a < attempts; a++ {
		bases, err := h.candidateBases(best, original, recent)
		if err != nil {
			return cpgconfig.ParamSet{}, report, err
		}
		localBest := best
		localBestFitness := bestFitness
		for _, base := range bases {
			candidate, err := h.perturb(ctx, base, slots, perturbationRange, annealingFactor)
			if err != nil {
				return cpgconfig.ParamSet{}, report, err
			}
			candidateFitness, err := fitness(ctx, candidate)
			if err != nil {
				return cpgconfig.ParamSet{}, report, fmt.Errorf("attempt %d: %w", a, err)
			}
			report.CandidateEvaluations++
			if candidateFitness > localBestFitness+h.MinImprovement {
				localBest = candidate
				localBestFitness = candidateFitness
			}
		}
		recent = localBest.Clone()
		report.AttemptsExecuted++
		if localBestFitness > bestFitness+h.MinImprovement {
			best = localBest
			bestFitness = localBestFitness
			report.AcceptedCandidates++
			if h.Metrics != nil {
				h.Metrics.RecordTuningAccept()
			}
			logger.Debug("tuning candidate accepted", "attempt", a, "fitness", bestFitness)
		} else {
			report.RejectedCandidates++
		}
		report.History = append(report.History, bestFitness)
		if h.goalReached(bestFitness) {
			report.GoalReached = true
			break
		}
	}

	report.BestFitness = bestFitness
	logger.Info("tuning finished",
		"attempts", report.AttemptsExecuted,
		"accepted", report.AcceptedCandidates,
		"initial_fitness", report.InitialFitness,
		"best_fitness", bestFitness,
	)
	return best, report, nil
}

func (h *HillClimber) validate(fitness FitnessFn) error {
	if h == nil || h.Rand == nil {
		return errors.New("random source is required")
	}
	if h.Steps <= 0 {
		return errors.New("steps must be > 0")
	}
	if h.StepSize <= 0 {
		return errors.New("step size must be > 0")
	}
	if h.PerturbationRange < 0 {
		return errors.New("perturbation range must be >= 0")
	}
	if h.AnnealingFactor < 0 {
		return errors.New("annealing factor must be >= 0")
	}
	if h.MinImprovement < 0 {
		return errors.New("min improvement must be >= 0")
	}
	if fitness == nil {
		return errors.New("fitness function is required")
	}
	switch NormalizeCandidateSelectionName(h.CandidateSelection) {
	case CandidateSelectBestSoFar, CandidateSelectOriginal, CandidateSelectDynamicA, CandidateSelectDynamic,
		CandidateSelectRecent, CandidateSelectRecentRnd, CandidateSelectAll, CandidateSelectAllRandom:
		return nil
	default:
		return fmt.Errorf("unsupported candidate selection %q", h.CandidateSelection)
	}
}

func (h *HillClimber) goalReached(fitness float64) bool {
	return h.GoalFitness > 0 && fitness >= h.GoalFitness
}

func (h *HillClimber) randIntn(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Rand.Intn(n)
}

func (h *HillClimber) randFloat64() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Rand.Float64()
}

func NormalizeCandidateSelectionName(name string) string {
	if name == "" {
		return CandidateSelectBestSoFar
	}
	return name
}

func (h *HillClimber) candidateBases(best, original, recent cpgconfig.ParamSet) ([]cpgconfig.ParamSet, error) {
	mode := NormalizeCandidateSelectionName(h.CandidateSelection)
	switch mode {
	case CandidateSelectDynamic, CandidateSelectRecentRnd, CandidateSelectAllRandom:
		pool, err := candidateBasesForMode(nonRandomModeFor(mode), best, original, recent)
		if err != nil {
			return nil, err
		}
		return h.randomSubset(pool), nil
	}
	return candidateBasesForMode(mode, best, original, recent)
}

func candidateBasesForMode(mode string, best, original, recent cpgconfig.ParamSet) ([]cpgconfig.ParamSet, error) {
	switch mode {
	case CandidateSelectBestSoFar:
		return []cpgconfig.ParamSet{best}, nil
	case CandidateSelectOriginal:
		return []cpgconfig.ParamSet{original}, nil
	case CandidateSelectDynamicA:
		return []cpgconfig.ParamSet{best, original}, nil
	case CandidateSelectRecent:
		return []cpgconfig.ParamSet{recent}, nil
	case CandidateSelectAll:
		return []cpgconfig.ParamSet{best, original, recent}, nil
	default:
		return nil, errors.New("unsupported candidate selection")
	}
}

func nonRandomModeFor(mode string) string {
	switch mode {
	case CandidateSelectDynamic:
		return CandidateSelectDynamicA
	case CandidateSelectRecentRnd:
		return CandidateSelectRecent
	case CandidateSelectAllRandom:
		return CandidateSelectAll
	default:
		return mode
	}
}

func (h *HillClimber) randomSubset(pool []cpgconfig.ParamSet) []cpgconfig.ParamSet {
	if len(pool) <= 1 {
		return pool
	}
	mutationP := 1 / math.Sqrt(float64(len(pool)))
	chosen := make([]cpgconfig.ParamSet, 0, len(pool))
	for i := range pool {
		if h.randFloat64() < mutationP {
			chosen = append(chosen, pool[i])
		}
	}
	if len(chosen) > 0 {
		return chosen
	}
	return []cpgconfig.ParamSet{pool[h.randIntn(len(pool))]}
}

// slot addresses one tunable entry: a node parameter when edge is false,
// otherwise edges[i][j][role][param].
type slot struct {
	edge        bool
	i, j, role  int
	param       int
	nonNegative bool
}

// tunableSlots lists every entry Map reads: all node parameters, coupling
// weights in the target group's role slot, and each group's own gain
// scales.
func tunableSlots(layout cpgconfig.Layout) []slot {
	n := layout.Oscillators()
	out := make([]slot, 0, n*int(cpgconfig.NodeParamCount)+n*n)
	for i := 0; i < n; i++ {
		for p := 0; p < int(cpgconfig.NodeParamCount); p++ {
			out = append(out, slot{i: i, param: p})
		}
	}
	for src := 0; src < n; src++ {
		for dst := 0; dst < n; dst++ {
			role, _ := cpgconfig.RoleSlot(layout.Groups[dst].Role)
			if src != dst {
				out = append(out, slot{edge: true, i: src, j: dst, role: role, param: int(cpgconfig.CouplingWeight)})
				continue
			}
			out = append(out,
				slot{edge: true, i: src, j: dst, role: role, param: int(cpgconfig.StiffnessScale), nonNegative: true},
				slot{edge: true, i: src, j: dst, role: role, param: int(cpgconfig.DampingScale), nonNegative: true},
			)
		}
	}
	return out
}

func (h *HillClimber) perturb(ctx context.Context, base cpgconfig.ParamSet, slots []slot, perturbationRange, annealingFactor float64) (cpgconfig.ParamSet, error) {
	candidate := base.Clone()
	for s := 0; s < h.Steps; s++ {
		if err := ctx.Err(); err != nil {
			return cpgconfig.ParamSet{}, err
		}
		sl := slots[h.randIntn(len(slots))]
		spread := h.StepSize * perturbationRange * math.Pow(annealingFactor, float64(s))
		delta := (h.randFloat64()*2 - 1) * spread
		if sl.edge {
			v := candidate.Edges[sl.i][sl.j][sl.role][sl.param] + delta
			if sl.nonNegative {
				v = math.Max(0, v)
			}
			candidate.Edges[sl.i][sl.j][sl.role][sl.param] = v
			continue
		}
		candidate.Nodes[sl.i][sl.param] += delta
	}
	return candidate, nil
}

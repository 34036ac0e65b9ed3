package tuning

import (
	"context"

	"tensegrity/internal/cpgconfig"
)

// FitnessFn scores one candidate parameter set. Higher is better.
type FitnessFn func(ctx context.Context, params cpgconfig.ParamSet) (float64, error)

type TuneReport struct {
	AttemptsPlanned      int     `json:"attempts_planned"`
	AttemptsExecuted     int     `json:"attempts_executed"`
	CandidateEvaluations int     `json:"candidate_evaluations"`
	AcceptedCandidates   int     `json:"accepted_candidates"`
	RejectedCandidates   int     `json:"rejected_candidates"`
	GoalReached          bool    `json:"goal_reached"`
	InitialFitness       float64 `json:"initial_fitness"`
	BestFitness          float64 `json:"best_fitness"`

	// History holds the best fitness before the first attempt and after
	// every executed attempt.
	History []float64 `json:"history"`
}

type Tuner interface {
	Name() string
	Tune(ctx context.Context, layout cpgconfig.Layout, params cpgconfig.ParamSet, attempts int, fitness FitnessFn) (cpgconfig.ParamSet, TuneReport, error)
}

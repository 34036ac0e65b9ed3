package storage

import (
	"context"

	"tensegrity/internal/model"
)

// Store persists parameter sets, trial outcomes and tuning runs.
type Store interface {
	Init(ctx context.Context) error
	SaveParamSet(ctx context.Context, record model.ParamSetRecord) error
	GetParamSet(ctx context.Context, id string) (model.ParamSetRecord, bool, error)
	ListParamSets(ctx context.Context, robot string) ([]model.ParamSetRecord, error)
	SaveTrial(ctx context.Context, record model.TrialRecord) error
	GetTrial(ctx context.Context, id string) (model.TrialRecord, bool, error)
	ListTrials(ctx context.Context, robot string) ([]model.TrialRecord, error)
	SaveTuningRun(ctx context.Context, run model.TuningRun) error
	GetTuningRun(ctx context.Context, id string) (model.TuningRun, bool, error)
	ListTuningRuns(ctx context.Context) ([]model.TuningRun, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
}

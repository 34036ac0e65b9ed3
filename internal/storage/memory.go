package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"tensegrity/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	paramSets   map[string]model.ParamSetRecord
	trials      map[string]model.TrialRecord
	runs        map[string]model.TuningRun
	history     map[string][]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.paramSets = make(map[string]model.ParamSetRecord)
	s.trials = make(map[string]model.TrialRecord)
	s.runs = make(map[string]model.TuningRun)
	s.history = make(map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveParamSet(_ context.Context, record model.ParamSetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.paramSets[record.ID] = copyParamSet(record)
	return nil
}

func (s *MemoryStore) GetParamSet(_ context.Context, id string) (model.ParamSetRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.paramSets[id]
	if !ok {
		return model.ParamSetRecord{}, false, nil
	}
	return copyParamSet(record), true, nil
}

func (s *MemoryStore) ListParamSets(_ context.Context, robot string) ([]model.ParamSetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ParamSetRecord, 0, len(s.paramSets))
	for _, record := range s.paramSets {
		if robot != "" && record.Robot != robot {
			continue
		}
		out = append(out, copyParamSet(record))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveTrial(_ context.Context, record model.TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.trials[record.ID] = record
	return nil
}

func (s *MemoryStore) GetTrial(_ context.Context, id string) (model.TrialRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.trials[id]
	return record, ok, nil
}

func (s *MemoryStore) ListTrials(_ context.Context, robot string) ([]model.TrialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TrialRecord, 0, len(s.trials))
	for _, record := range s.trials {
		if robot != "" && record.Robot != robot {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveTuningRun(_ context.Context, run model.TuningRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetTuningRun(_ context.Context, id string) (model.TuningRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListTuningRuns(_ context.Context) ([]model.TuningRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TuningRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func copyParamSet(r model.ParamSetRecord) model.ParamSetRecord {
	r.Groups = append([]string(nil), r.Groups...)
	nodes := make([][]float64, len(r.Nodes))
	for i, row := range r.Nodes {
		nodes[i] = append([]float64(nil), row...)
	}
	r.Nodes = nodes
	edges := make([][][][]float64, len(r.Edges))
	for i, plane := range r.Edges {
		edges[i] = make([][][]float64, len(plane))
		for j, roles := range plane {
			edges[i][j] = make([][]float64, len(roles))
			for k, vals := range roles {
				edges[i][j][k] = append([]float64(nil), vals...)
			}
		}
	}
	r.Edges = edges
	return r
}

//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"tensegrity/internal/model"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "tensegrity.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	params := model.ParamSetRecord{
		VersionedRecord: Stamp(),
		ID:              "ps-1",
		Robot:           "t6",
		Source:          "seed",
		Groups:          []string{"node-0"},
		Nodes:           [][]float64{{3.14, 0.1, 0, 0, 1, 0.9}},
		Edges:           [][][][]float64{{{{0, 1, 1}, {0, 0, 0}}}},
		CreatedAt:       created,
	}
	if err := store.SaveParamSet(ctx, params); err != nil {
		t.Fatalf("save param set: %v", err)
	}
	params.Fitness = 0.5
	if err := store.SaveParamSet(ctx, params); err != nil {
		t.Fatalf("upsert param set: %v", err)
	}
	loaded, ok, err := store.GetParamSet(ctx, "ps-1")
	if err != nil || !ok {
		t.Fatalf("get param set: ok=%t err=%v", ok, err)
	}
	if !reflect.DeepEqual(params, loaded) {
		t.Fatalf("param set mismatch:\n in=%+v\nout=%+v", params, loaded)
	}

	trial := model.TrialRecord{VersionedRecord: Stamp(), ID: "trial-1", Robot: "t6", Status: "ok", Fitness: 0.5, StartedAt: created}
	other := model.TrialRecord{VersionedRecord: Stamp(), ID: "trial-2", Robot: "prism", Status: "ok", StartedAt: created.Add(time.Second)}
	for _, record := range []model.TrialRecord{other, trial} {
		if err := store.SaveTrial(ctx, record); err != nil {
			t.Fatalf("save trial: %v", err)
		}
	}
	trials, err := store.ListTrials(ctx, "t6")
	if err != nil {
		t.Fatalf("list trials: %v", err)
	}
	if len(trials) != 1 || trials[0].ID != "trial-1" {
		t.Fatalf("unexpected trials: %+v", trials)
	}
	all, err := store.ListTrials(ctx, "")
	if err != nil {
		t.Fatalf("list all trials: %v", err)
	}
	if len(all) != 2 || all[0].ID != "trial-1" {
		t.Fatalf("unexpected trial order: %+v", all)
	}

	run := model.TuningRun{VersionedRecord: Stamp(), ID: "run-1", Robot: "t6", Iterations: 5, BestParamSetID: "ps-1", CreatedAt: created}
	if err := store.SaveTuningRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	loadedRun, ok, err := store.GetTuningRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if !reflect.DeepEqual(run, loadedRun) {
		t.Fatalf("run mismatch: %+v", loadedRun)
	}

	if err := store.SaveFitnessHistory(ctx, "run-1", []float64{0.1, 0.5}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	history, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%t err=%v", ok, err)
	}
	if len(history) != 2 || history[1] != 0.5 {
		t.Fatalf("unexpected history: %v", history)
	}

	if _, ok, err := store.GetTrial(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing trial, ok=%t err=%v", ok, err)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "x.db"))
	if err := store.SaveTrial(context.Background(), model.TrialRecord{ID: "t"}); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ParamSetRecord is a stored CPG parameter set together with the robot
// layout it was produced for.
type ParamSetRecord struct {
	VersionedRecord
	ID        string          `json:"id"`
	Robot     string          `json:"robot"`
	Segments  int             `json:"segments,omitempty"`
	Source    string          `json:"source"`
	Groups    []string        `json:"groups"`
	Nodes     [][]float64     `json:"nodes"`
	Edges     [][][][]float64 `json:"edges"`
	Fitness   float64         `json:"fitness"`
	CreatedAt time.Time       `json:"created_at"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TrialRecord is the outcome of one setup, step, teardown episode.
type TrialRecord struct {
	VersionedRecord
	ID         string        `json:"id"`
	Robot      string        `json:"robot"`
	Segments   int           `json:"segments,omitempty"`
	ParamSetID string        `json:"param_set_id,omitempty"`
	Ticks      int           `json:"ticks"`
	Timestep   float64       `json:"timestep"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Fitness    float64       `json:"fitness"`
	Clamps     int           `json:"clamps"`
	StartCOM   Vec3          `json:"start_com"`
	EndCOM     Vec3          `json:"end_com"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// TuningRun summarizes one tuning session. Its per-iteration best fitness
// is stored separately as fitness history under the same ID.
type TuningRun struct {
	VersionedRecord
	ID             string    `json:"id"`
	Robot          string    `json:"robot"`
	Segments       int       `json:"segments,omitempty"`
	Iterations     int       `json:"iterations"`
	Accepted       int       `json:"accepted"`
	Seed           int64     `json:"seed"`
	InitialFitness float64   `json:"initial_fitness"`
	BestFitness    float64   `json:"best_fitness"`
	BestParamSetID string    `json:"best_param_set_id"`
	CreatedAt      time.Time `json:"created_at"`
}

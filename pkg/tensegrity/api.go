package tensegrity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"tensegrity/internal/control"
	"tensegrity/internal/cpgconfig"
	"tensegrity/internal/impedance"
	"tensegrity/internal/logging"
	"tensegrity/internal/metrics"
	"tensegrity/internal/model"
	"tensegrity/internal/physics"
	"tensegrity/internal/robots"
	"tensegrity/internal/storage"
	sim "tensegrity/internal/tensegrity"
	"tensegrity/internal/trial"
	"tensegrity/internal/tuning"
)

const (
	defaultDBPath = "tensegrity.db"
	defaultTicks  = 5000
	defaultDt     = 0.001

	ControllerCPG  = "cpg"
	ControllerSine = "sine"
)

var (
	ErrParamSetNotFound = errors.New("param set not found")
	ErrRunNotFound      = errors.New("tuning run not found")
	ErrTrialNotFound    = errors.New("trial not found")
)

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
	Metrics   *metrics.Registry
}

type Client struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Registry
}

// EpisodeRequest selects a robot and how long to run it.
type EpisodeRequest struct {
	Robot    string
	Segments int
	// StructureFile loads the robot from a YAML or JSON structure document
	// instead of the registry. Robot is ignored when it is set.
	StructureFile string

	Ticks int
	Dt    float64
	// World defaults to physics.DefaultWorldConfig.
	World   *physics.WorldConfig
	Control control.CPGConfig
	// GroupMode and TensionOffset configure every muscle group.
	GroupMode     impedance.Mode
	TensionOffset float64
}

type SimulateRequest struct {
	EpisodeRequest
	// Controller is ControllerCPG (default) or ControllerSine.
	Controller string
	// ParamSetID loads stored CPG parameters; Params supplies them
	// directly. With neither, the robot's seed parameters are used.
	ParamSetID string
	Params     *cpgconfig.ParamSet
	Sine       control.SineWaveConfig
	Observe    trial.TickObserver
}

type SimulateSummary struct {
	TrialID    string
	Robot      string
	ParamSetID string
	Status     string
	Fitness    float64
	Ticks      int
	Clamps     int
	StartCOM   model.Vec3
	EndCOM     model.Vec3
	Duration   time.Duration
}

type TuneRequest struct {
	EpisodeRequest
	Attempts           int
	Seed               int64
	Steps              int
	StepSize           float64
	PerturbationRange  float64
	AnnealingFactor    float64
	MinImprovement     float64
	GoalFitness        float64
	CandidateSelection string
	// Initial defaults to the robot's seed parameters.
	Initial *cpgconfig.ParamSet
}

type TuneSummary struct {
	RunID          string
	ParamSetID     string
	Params         cpgconfig.ParamSet
	InitialFitness float64
	BestFitness    float64
	Report         tuning.TuneReport
}

type RunsRequest struct {
	Robot string
	Limit int
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type RobotItem struct {
	Name            string
	Description     string
	DefaultSegments int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.KindMemory
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:   store,
		logger:  logging.OrNop(opts.Logger),
		metrics: opts.Metrics,
	}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Robots() []RobotItem {
	names := robots.List()
	out := make([]RobotItem, 0, len(names))
	for _, name := range names {
		r, err := robots.Resolve(name)
		if err != nil {
			continue
		}
		out = append(out, RobotItem{Name: r.Name, Description: r.Description, DefaultSegments: r.DefaultSegments})
	}
	return out
}

// Layout returns the oscillator layout parameter sets for req must match.
func (c *Client) Layout(req EpisodeRequest) (cpgconfig.Layout, error) {
	runner, err := c.runner(req)
	if err != nil {
		return cpgconfig.Layout{}, err
	}
	return runner.Layout()
}

// Simulate runs one episode and stores its trial record. A failed episode
// is stored too, and its error returned.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateSummary, error) {
	runner, err := c.runner(req.EpisodeRequest)
	if err != nil {
		return SimulateSummary{}, err
	}
	runner.Observe = req.Observe

	var res trial.Result
	var runErr error
	paramSetID := req.ParamSetID
	switch req.Controller {
	case "", ControllerCPG:
		params, err := c.resolveParams(ctx, runner, req.ParamSetID, req.Params)
		if err != nil {
			return SimulateSummary{}, err
		}
		res, runErr = runner.Evaluate(ctx, params)
	case ControllerSine:
		cfg := req.Sine
		if cfg == (control.SineWaveConfig{}) {
			cfg = control.DefaultSineWaveConfig()
		}
		paramSetID = ""
		res, runErr = runner.Run(ctx, control.NewSineWaveController(cfg))
	default:
		return SimulateSummary{}, fmt.Errorf("unsupported controller: %s", req.Controller)
	}
	if errors.Is(runErr, trial.ErrInvalidRunner) {
		return SimulateSummary{}, runErr
	}

	record := runner.Record(res, paramSetID)
	if err := c.store.SaveTrial(ctx, record); err != nil {
		return SimulateSummary{}, errors.Join(runErr, fmt.Errorf("save trial: %w", err))
	}
	return SimulateSummary{
		TrialID:    record.ID,
		Robot:      record.Robot,
		ParamSetID: paramSetID,
		Status:     record.Status,
		Fitness:    record.Fitness,
		Ticks:      record.Ticks,
		Clamps:     record.Clamps,
		StartCOM:   record.StartCOM,
		EndCOM:     record.EndCOM,
		Duration:   record.Duration,
	}, runErr
}

// Tune hill-climbs CPG parameters for a robot and stores the best set, the
// run summary and its fitness history.
func (c *Client) Tune(ctx context.Context, req TuneRequest) (TuneSummary, error) {
	if req.Attempts < 0 {
		return TuneSummary{}, errors.New("attempts must be >= 0")
	}
	if req.Steps <= 0 {
		req.Steps = 4
	}
	if req.StepSize <= 0 {
		req.StepSize = 0.2
	}
	runner, err := c.runner(req.EpisodeRequest)
	if err != nil {
		return TuneSummary{}, err
	}
	layout, err := runner.Layout()
	if err != nil {
		return TuneSummary{}, err
	}
	initial := cpgconfig.Seed(layout)
	source := "seed"
	if req.Initial != nil {
		initial = req.Initial.Clone()
		source = "file"
	}

	tuner := &tuning.HillClimber{
		Rand:               rand.New(rand.NewSource(req.Seed)),
		Steps:              req.Steps,
		StepSize:           req.StepSize,
		PerturbationRange:  req.PerturbationRange,
		AnnealingFactor:    req.AnnealingFactor,
		MinImprovement:     req.MinImprovement,
		GoalFitness:        req.GoalFitness,
		CandidateSelection: req.CandidateSelection,
		Logger:             c.logger,
		Metrics:            c.metrics,
	}
	fitness := func(ctx context.Context, p cpgconfig.ParamSet) (float64, error) {
		res, err := runner.Evaluate(ctx, p)
		if err != nil {
			return 0, err
		}
		return res.Fitness, nil
	}
	best, report, err := tuner.Tune(ctx, layout, initial, req.Attempts, fitness)
	if err != nil {
		return TuneSummary{}, err
	}

	now := time.Now().UTC()
	paramRecord := paramSetRecord(best, runner.Robot.Name, req.Segments, "tune", report.BestFitness, now)
	run := model.TuningRun{
		VersionedRecord: storage.Stamp(),
		ID:              uuid.NewString(),
		Robot:           runner.Robot.Name,
		Segments:        req.Segments,
		Iterations:      report.AttemptsExecuted,
		Accepted:        report.AcceptedCandidates,
		Seed:            req.Seed,
		InitialFitness:  report.InitialFitness,
		BestFitness:     report.BestFitness,
		BestParamSetID:  paramRecord.ID,
		CreatedAt:       now,
	}
	if err := c.store.SaveParamSet(ctx, paramRecord); err != nil {
		return TuneSummary{}, fmt.Errorf("save param set: %w", err)
	}
	if err := c.store.SaveTuningRun(ctx, run); err != nil {
		return TuneSummary{}, fmt.Errorf("save tuning run: %w", err)
	}
	if err := c.store.SaveFitnessHistory(ctx, run.ID, report.History); err != nil {
		return TuneSummary{}, fmt.Errorf("save fitness history: %w", err)
	}
	c.logger.Info("tuning run stored",
		"run", run.ID,
		"param_set", paramRecord.ID,
		"source", source,
		"best_fitness", report.BestFitness,
	)

	return TuneSummary{
		RunID:          run.ID,
		ParamSetID:     paramRecord.ID,
		Params:         best,
		InitialFitness: report.InitialFitness,
		BestFitness:    report.BestFitness,
		Report:         report,
	}, nil
}

// ImportParamSet stores a parameter set file after checking it against the
// robot's layout.
func (c *Client) ImportParamSet(ctx context.Context, req EpisodeRequest, path string) (model.ParamSetRecord, error) {
	runner, err := c.runner(req)
	if err != nil {
		return model.ParamSetRecord{}, err
	}
	layout, err := runner.Layout()
	if err != nil {
		return model.ParamSetRecord{}, err
	}
	params, err := cpgconfig.Load(path)
	if err != nil {
		return model.ParamSetRecord{}, err
	}
	if err := params.Check(layout); err != nil {
		return model.ParamSetRecord{}, err
	}
	if len(params.Groups) == 0 {
		params.Groups = layout.Names()
	}
	record := paramSetRecord(params, runner.Robot.Name, req.Segments, "import", 0, time.Now().UTC())
	if err := c.store.SaveParamSet(ctx, record); err != nil {
		return model.ParamSetRecord{}, fmt.Errorf("save param set: %w", err)
	}
	return record, nil
}

// ExportParamSet writes a stored parameter set to path, as JSON or YAML by
// extension.
func (c *Client) ExportParamSet(ctx context.Context, id, path string) error {
	params, _, err := c.ParamSet(ctx, id)
	if err != nil {
		return err
	}
	return cpgconfig.Save(path, params)
}

func (c *Client) ParamSet(ctx context.Context, id string) (cpgconfig.ParamSet, model.ParamSetRecord, error) {
	record, ok, err := c.store.GetParamSet(ctx, id)
	if err != nil {
		return cpgconfig.ParamSet{}, model.ParamSetRecord{}, err
	}
	if !ok {
		return cpgconfig.ParamSet{}, model.ParamSetRecord{}, fmt.Errorf("%w: %s", ErrParamSetNotFound, id)
	}
	return cpgconfig.ParamSet{Groups: record.Groups, Nodes: record.Nodes, Edges: record.Edges}, record, nil
}

func (c *Client) ParamSets(ctx context.Context, req RunsRequest) ([]model.ParamSetRecord, error) {
	records, err := c.store.ListParamSets(ctx, req.Robot)
	if err != nil {
		return nil, err
	}
	return latestFirst(records, req.Limit), nil
}

func (c *Client) Trials(ctx context.Context, req RunsRequest) ([]model.TrialRecord, error) {
	records, err := c.store.ListTrials(ctx, req.Robot)
	if err != nil {
		return nil, err
	}
	return latestFirst(records, req.Limit), nil
}

func (c *Client) Trial(ctx context.Context, id string) (model.TrialRecord, error) {
	record, ok, err := c.store.GetTrial(ctx, id)
	if err != nil {
		return model.TrialRecord{}, err
	}
	if !ok {
		return model.TrialRecord{}, fmt.Errorf("%w: %s", ErrTrialNotFound, id)
	}
	return record, nil
}

func (c *Client) TuningRuns(ctx context.Context, req RunsRequest) ([]model.TuningRun, error) {
	runs, err := c.store.ListTuningRuns(ctx)
	if err != nil {
		return nil, err
	}
	if req.Robot != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if run.Robot == req.Robot {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}
	return latestFirst(runs, req.Limit), nil
}

func (c *Client) TuningRun(ctx context.Context, id string) (model.TuningRun, error) {
	run, ok, err := c.store.GetTuningRun(ctx, id)
	if err != nil {
		return model.TuningRun{}, err
	}
	if !ok {
		return model.TuningRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}

	runID := req.RunID
	if req.Latest {
		runs, err := c.TuningRuns(ctx, RunsRequest{Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, errors.New("no runs available")
		}
		runID = runs[0].ID
	}
	if runID == "" {
		return nil, errors.New("fitness history requires run id or latest")
	}

	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no fitness history for %s", ErrRunNotFound, runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return history, nil
}

// Model builds an unbuilt model of a registered robot, for callers that
// drive the lifecycle themselves.
func (c *Client) Model(robot string, segments int, opts ...sim.Option) (*sim.Model, error) {
	r, err := robots.Resolve(robot)
	if err != nil {
		return nil, err
	}
	all := append([]sim.Option{sim.WithLogger(c.logger)}, opts...)
	if c.metrics != nil {
		all = append(all, sim.WithMetrics(c.metrics))
	}
	return r.NewModel(robots.Params{Segments: segments}, all...)
}

func (c *Client) runner(req EpisodeRequest) (*trial.Runner, error) {
	robot, err := resolveRobot(req)
	if err != nil {
		return nil, err
	}
	if req.Ticks <= 0 {
		req.Ticks = defaultTicks
	}
	if req.Dt <= 0 {
		req.Dt = defaultDt
	}
	world := physics.DefaultWorldConfig()
	if req.World != nil {
		world = *req.World
	}
	var groupOpts []impedance.Option
	if req.GroupMode != impedance.ModeRestLength || req.TensionOffset != 0 {
		groupOpts = append(groupOpts,
			impedance.WithMode(req.GroupMode),
			impedance.WithTensionOffset(req.TensionOffset),
		)
	}
	return &trial.Runner{
		Robot:        robot,
		Params:       robots.Params{Segments: req.Segments},
		NewWorld:     func() physics.World { return physics.NewSpringWorld(world) },
		Ticks:        req.Ticks,
		Dt:           req.Dt,
		Control:      req.Control,
		Logger:       c.logger,
		Metrics:      c.metrics,
		GroupOptions: groupOpts,
	}, nil
}

func resolveRobot(req EpisodeRequest) (robots.Robot, error) {
	if req.StructureFile != "" {
		return robots.LoadFile(req.StructureFile)
	}
	if req.Robot == "" {
		req.Robot = "t6"
	}
	return robots.Resolve(req.Robot)
}

func (c *Client) resolveParams(ctx context.Context, runner *trial.Runner, id string, direct *cpgconfig.ParamSet) (cpgconfig.ParamSet, error) {
	if id != "" && direct != nil {
		return cpgconfig.ParamSet{}, errors.New("use either param set id or params")
	}
	if id != "" {
		params, _, err := c.ParamSet(ctx, id)
		return params, err
	}
	if direct != nil {
		return direct.Clone(), nil
	}
	layout, err := runner.Layout()
	if err != nil {
		return cpgconfig.ParamSet{}, err
	}
	return cpgconfig.Seed(layout), nil
}

func paramSetRecord(p cpgconfig.ParamSet, robot string, segments int, source string, fitness float64, at time.Time) model.ParamSetRecord {
	return model.ParamSetRecord{
		VersionedRecord: storage.Stamp(),
		ID:              uuid.NewString(),
		Robot:           robot,
		Segments:        segments,
		Source:          source,
		Groups:          append([]string(nil), p.Groups...),
		Nodes:           p.Nodes.Clone(),
		Edges:           p.Edges.Clone(),
		Fitness:         fitness,
		CreatedAt:       at,
	}
}

// latestFirst reverses creation-ordered records and keeps at most limit.
func latestFirst[T any](records []T, limit int) []T {
	out := make([]T, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
